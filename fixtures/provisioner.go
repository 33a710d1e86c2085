package fixtures

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"go.uber.org/zap"

	"github.com/newstack-cloud/celerity-test-tools/metrics"
)

// SecretsClient is the minimal interface for the Secrets Manager client
// required by the Provisioner. The AWS SDK already implements it; the
// type exists so tests can substitute a mock.
type SecretsClient interface {
	// https://pkg.go.dev/github.com/aws/aws-sdk-go-v2/service/secretsmanager#Client.CreateSecret
	CreateSecret(ctx context.Context, params *secretsmanager.CreateSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.CreateSecretOutput, error)
}

// QueueClient is the minimal interface for the SQS client required by
// the Provisioner.
type QueueClient interface {
	// https://pkg.go.dev/github.com/aws/aws-sdk-go-v2/service/sqs#Client.CreateQueue
	CreateQueue(ctx context.Context, params *sqs.CreateQueueInput, optFns ...func(*sqs.Options)) (*sqs.CreateQueueOutput, error)
}

// Provisioner drives fixtures from a Store into the emulated secret
// store and queue service. Secrets are provisioned before queues so a
// secret is always resolvable before any queue-dependent code path
// runs.
type Provisioner struct {
	store    *Store
	secrets  SecretsClient
	queues   QueueClient
	secretID string
	log      *zap.Logger
}

// ProvisionerConfig contains fixture provisioner configuration
type ProvisionerConfig struct {
	Store *Store
	// SecretID is the identifier the secret payload is stored under.
	// Required only when a secret fixture exists.
	SecretID string
	Region   string
	// Endpoint is the edge endpoint of the local cloud emulation.
	Endpoint string
	Log      *zap.Logger
}

// NewProvisioner creates a Provisioner with AWS SDK clients pointed at
// the local emulation endpoint.
func NewProvisioner(ctx context.Context, cfg ProvisionerConfig) (*Provisioner, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("fixture store is required")
	}
	if cfg.Log == nil {
		return nil, fmt.Errorf("logger is required")
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	secretsClient := secretsmanager.NewFromConfig(awsCfg, func(o *secretsmanager.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
	})
	queueClient := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
	})

	return NewProvisionerWithClients(cfg, secretsClient, queueClient), nil
}

// NewProvisionerWithClients creates a Provisioner with the given
// clients, primarily for tests.
func NewProvisionerWithClients(cfg ProvisionerConfig, secrets SecretsClient, queues QueueClient) *Provisioner {
	return &Provisioner{
		store:    cfg.Store,
		secrets:  secrets,
		queues:   queues,
		secretID: cfg.SecretID,
		log:      cfg.Log,
	}
}

// Provision seeds the emulated services with the store's fixtures,
// secrets first then queues. Missing fixtures are skipped; a fixture
// that fails to parse or submit aborts provisioning because a
// partially provisioned environment is unsafe to run tests against.
func (p *Provisioner) Provision(ctx context.Context) error {
	if err := p.provisionSecrets(ctx); err != nil {
		return err
	}
	return p.provisionQueues(ctx)
}

func (p *Provisioner) provisionSecrets(ctx context.Context) error {
	payload, exists, err := p.store.SecretPayload()
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}
	if p.secretID == "" {
		return fmt.Errorf("a secret fixture exists but no secret identifier is configured")
	}

	p.log.Info("saving secrets to the local secret store", zap.String("secretId", p.secretID))
	_, err = p.secrets.CreateSecret(ctx, &secretsmanager.CreateSecretInput{
		Name:         aws.String(p.secretID),
		SecretString: aws.String(payload),
	})
	if err != nil {
		return fmt.Errorf("failed to create secret %s: %w", p.secretID, err)
	}
	metrics.RecordFixtureProvisioned("secret")
	return nil
}

func (p *Provisioner) provisionQueues(ctx context.Context) error {
	queueFixtures, err := p.store.QueueFixtures()
	if err != nil {
		return err
	}

	for _, fixture := range queueFixtures {
		p.log.Info("creating queue from fixture", zap.String("queue", fixture.Name))
		output, err := p.queues.CreateQueue(ctx, &sqs.CreateQueueInput{
			QueueName:  aws.String(fixture.Name),
			Attributes: fixture.Attributes,
		})
		if err != nil {
			return fmt.Errorf("failed to create queue %s: %w", fixture.Name, err)
		}
		p.log.Debug("created queue", zap.String("queue", fixture.Name),
			zap.String("queueUrl", aws.ToString(output.QueueUrl)))
		metrics.RecordFixtureProvisioned("queue")
	}
	return nil
}
