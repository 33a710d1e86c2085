package fixtures

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type mockSecretsClient struct {
	inputs []*secretsmanager.CreateSecretInput
	err    error
}

func (m *mockSecretsClient) CreateSecret(ctx context.Context, params *secretsmanager.CreateSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.CreateSecretOutput, error) {
	m.inputs = append(m.inputs, params)
	if m.err != nil {
		return nil, m.err
	}
	return &secretsmanager.CreateSecretOutput{ARN: params.Name}, nil
}

type mockQueueClient struct {
	inputs []*sqs.CreateQueueInput
	err    error
}

func (m *mockQueueClient) CreateQueue(ctx context.Context, params *sqs.CreateQueueInput, optFns ...func(*sqs.Options)) (*sqs.CreateQueueOutput, error) {
	m.inputs = append(m.inputs, params)
	if m.err != nil {
		return nil, m.err
	}
	url := fmt.Sprintf("http://localhost:44566/000000000000/%s", aws.ToString(params.QueueName))
	return &sqs.CreateQueueOutput{QueueUrl: aws.String(url)}, nil
}

func newTestProvisioner(t *testing.T, baseDir string, secretID string) (*Provisioner, *mockSecretsClient, *mockQueueClient) {
	t.Helper()
	store, err := NewStore(baseDir, ContextTest, zaptest.NewLogger(t))
	require.NoError(t, err)

	secrets := &mockSecretsClient{}
	queues := &mockQueueClient{}
	provisioner := NewProvisionerWithClients(ProvisionerConfig{
		Store:    store,
		SecretID: secretID,
		Log:      zaptest.NewLogger(t),
	}, secrets, queues)
	return provisioner, secrets, queues
}

func TestProvisionSeedsSecretAndQueues(t *testing.T) {
	baseDir := t.TempDir()
	writeFixtureFile(t, filepath.Join(baseDir, "secrets.test.json"), `{"apiKey":"abc123"}`)
	queueDir := filepath.Join(baseDir, "tests", "__data", "sqs", "queues")
	writeFixtureFile(t, filepath.Join(queueDir, "orders.json"), `{"VisibilityTimeout":"30"}`)
	writeFixtureFile(t, filepath.Join(queueDir, "payments.json"), `{}`)

	provisioner, secrets, queues := newTestProvisioner(t, baseDir, "celerity/runtime/test")

	require.NoError(t, provisioner.Provision(context.Background()))

	require.Len(t, secrets.inputs, 1)
	assert.Equal(t, "celerity/runtime/test", aws.ToString(secrets.inputs[0].Name))
	assert.Equal(t, `{"apiKey":"abc123"}`, aws.ToString(secrets.inputs[0].SecretString))

	require.Len(t, queues.inputs, 2)
	assert.Equal(t, "orders", aws.ToString(queues.inputs[0].QueueName))
	assert.Equal(t, map[string]string{"VisibilityTimeout": "30"}, queues.inputs[0].Attributes)
	assert.Equal(t, "payments", aws.ToString(queues.inputs[1].QueueName))
}

func TestProvisionSkipsAbsentFixtures(t *testing.T) {
	provisioner, secrets, queues := newTestProvisioner(t, t.TempDir(), "celerity/runtime/test")

	require.NoError(t, provisioner.Provision(context.Background()))
	assert.Empty(t, secrets.inputs)
	assert.Empty(t, queues.inputs)
}

func TestProvisionRequiresSecretIDWhenSecretExists(t *testing.T) {
	baseDir := t.TempDir()
	writeFixtureFile(t, filepath.Join(baseDir, "secrets.test.json"), `{"apiKey":"abc123"}`)

	provisioner, secrets, _ := newTestProvisioner(t, baseDir, "")

	err := provisioner.Provision(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no secret identifier is configured")
	assert.Empty(t, secrets.inputs)
}

func TestProvisionAbortsOnSecretSubmitFailure(t *testing.T) {
	baseDir := t.TempDir()
	writeFixtureFile(t, filepath.Join(baseDir, "secrets.test.json"), `{"apiKey":"abc123"}`)
	writeFixtureFile(t,
		filepath.Join(baseDir, "tests", "__data", "sqs", "queues", "orders.json"), `{}`)

	provisioner, secrets, queues := newTestProvisioner(t, baseDir, "celerity/runtime/test")
	secrets.err = fmt.Errorf("connection refused")

	err := provisioner.Provision(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create secret")
	// Queues are never attempted after a secret failure.
	assert.Empty(t, queues.inputs)
}

func TestProvisionAbortsOnQueueSubmitFailure(t *testing.T) {
	baseDir := t.TempDir()
	writeFixtureFile(t,
		filepath.Join(baseDir, "tests", "__data", "sqs", "queues", "orders.json"), `{}`)

	provisioner, _, queues := newTestProvisioner(t, baseDir, "celerity/runtime/test")
	queues.err = fmt.Errorf("connection refused")

	err := provisioner.Provision(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create queue orders")
}
