package encryption

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/tink-crypto/tink-go-awskms/v3/integration/awskms"
	"github.com/tink-crypto/tink-go/v2/aead"
	"github.com/tink-crypto/tink-go/v2/insecurecleartextkeyset"
	"github.com/tink-crypto/tink-go/v2/keyset"
	"github.com/tink-crypto/tink-go/v2/tink"
)

// KMSAPI is the subset of the AWS KMS client used to unwrap keysets.
type KMSAPI interface {
	Encrypt(ctx context.Context, params *kms.EncryptInput, optFns ...func(*kms.Options)) (*kms.EncryptOutput, error)
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

// SecretsManagerAPI is the subset of the Secrets Manager client used to read
// keysets.
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

type awsClients struct {
	kms            KMSAPI
	secretsManager SecretsManagerAPI
}

// AWSOption overrides an AWS client used by LoadKeysetFromAWS.
type AWSOption func(*awsClients)

// WithKMSClient sets the KMS client used to decrypt the keyset.
func WithKMSClient(client KMSAPI) AWSOption {
	return func(c *awsClients) {
		c.kms = client
	}
}

// WithSecretsManagerClient sets the client used to fetch the keyset.
func WithSecretsManagerClient(client SecretsManagerAPI) AWSOption {
	return func(c *awsClients) {
		c.secretsManager = client
	}
}

// Validate performs a test encryption/decryption cycle to verify the AEAD is
// working. Call this at startup to fail fast if encryption is misconfigured.
func Validate(a tink.AEAD) error {
	testPlaintext := []byte("youthweb-bridge-cache-check")
	testAAD := []byte("validation")

	ciphertext, err := a.Encrypt(testPlaintext, testAAD)
	if err != nil {
		return fmt.Errorf("validation encrypt failed: %w", err)
	}

	decrypted, err := a.Decrypt(ciphertext, testAAD)
	if err != nil {
		return fmt.Errorf("validation decrypt failed: %w", err)
	}

	if !bytes.Equal(testPlaintext, decrypted) {
		return fmt.Errorf("validation round-trip failed: plaintext mismatch")
	}

	return nil
}

// NewAEAD creates the AEAD primitive for a keyset handle.
func NewAEAD(handle *keyset.Handle) (tink.AEAD, error) {
	if handle == nil {
		return nil, fmt.Errorf("creating AEAD primitive: keyset handle is nil")
	}

	primitive, err := aead.New(handle)
	if err != nil {
		return nil, fmt.Errorf("creating AEAD primitive: %w", err)
	}

	return primitive, nil
}

// LoadKeysetFromAWS reads a keyset from AWS Secrets Manager and decrypts it
// with an AWS KMS key. Clients not supplied through options are created from
// the default AWS configuration.
//
// keysetURI format: aws-secretsmanager://secret-name
// kmsEnvelopeKeyURI format: aws-kms://arn:aws:kms:region:account:key/key-id
func LoadKeysetFromAWS(ctx context.Context, keysetURI, kmsEnvelopeKeyURI string, opts ...AWSOption) (*keyset.Handle, error) {
	var clients awsClients
	for _, opt := range opts {
		opt(&clients)
	}

	if clients.kms == nil || clients.secretsManager == nil {
		cfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading AWS config: %w", err)
		}
		if clients.kms == nil {
			clients.kms = kms.NewFromConfig(cfg)
		}
		if clients.secretsManager == nil {
			clients.secretsManager = secretsmanager.NewFromConfig(cfg)
		}
	}

	kmsAEAD, err := awskms.NewAEADWithContext(ctx, kmsEnvelopeKeyURI, awskms.WithKMS(clients.kms))
	if err != nil {
		return nil, fmt.Errorf("creating KMS AEAD: %w", err)
	}

	keysetReader, err := readKeysetFromSecretsManager(ctx, keysetURI, clients.secretsManager)
	if err != nil {
		return nil, fmt.Errorf("reading keyset: %w", err)
	}

	handle, err := keyset.ReadWithContext(ctx, keysetReader, kmsAEAD, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypting keyset: %w", err)
	}

	return handle, nil
}

// NewAEADFromKMS creates a validated AEAD from a KMS-protected keyset. The KMS
// key is only used to decrypt the keyset; all subsequent operations are local.
func NewAEADFromKMS(ctx context.Context, keysetURI, kmsEnvelopeKeyURI string, opts ...AWSOption) (tink.AEAD, error) {
	handle, err := LoadKeysetFromAWS(ctx, keysetURI, kmsEnvelopeKeyURI, opts...)
	if err != nil {
		return nil, err
	}

	primitive, err := NewAEAD(handle)
	if err != nil {
		return nil, err
	}

	if err := Validate(primitive); err != nil {
		return nil, fmt.Errorf("validating AEAD: %w", err)
	}

	return primitive, nil
}

// LoadKeysetFromFile reads a cleartext JSON keyset. Intended for local
// development where no KMS is available.
func LoadKeysetFromFile(path string) (*keyset.Handle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening keyset file: %w", err)
	}
	defer func() { _ = f.Close() }()

	handle, err := insecurecleartextkeyset.Read(keyset.NewJSONReader(f))
	if err != nil {
		return nil, fmt.Errorf("reading cleartext keyset %q: %w", path, err)
	}

	return handle, nil
}

// WriteCleartextKeyset creates a fresh AES256-GCM keyset and writes it to
// path as cleartext JSON, creating parent directories. The file is readable
// by LoadKeysetFromFile and must never leave a development machine.
func WriteCleartextKeyset(path string) error {
	handle, err := keyset.NewHandle(aead.AES256GCMKeyTemplate())
	if err != nil {
		return fmt.Errorf("creating keyset handle: %w", err)
	}

	var buf bytes.Buffer
	if err := insecurecleartextkeyset.Write(handle, keyset.NewJSONWriter(&buf)); err != nil {
		return fmt.Errorf("encoding keyset: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating keyset directory: %w", err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing keyset file: %w", err)
	}

	return nil
}

// NewAEADFromFile creates a validated AEAD from a cleartext keyset file.
func NewAEADFromFile(path string) (tink.AEAD, error) {
	handle, err := LoadKeysetFromFile(path)
	if err != nil {
		return nil, err
	}

	primitive, err := NewAEAD(handle)
	if err != nil {
		return nil, err
	}

	if err := Validate(primitive); err != nil {
		return nil, fmt.Errorf("validating AEAD: %w", err)
	}

	return primitive, nil
}

// readKeysetFromSecretsManager reads a Tink keyset from AWS Secrets Manager.
// URI format: aws-secretsmanager://secret-name
func readKeysetFromSecretsManager(ctx context.Context, uri string, client SecretsManagerAPI) (*keyset.JSONReader, error) {
	const prefix = "aws-secretsmanager://"
	if !strings.HasPrefix(uri, prefix) {
		return nil, fmt.Errorf("invalid secrets manager URI %q: must start with %s", uri, prefix)
	}

	secretName := strings.TrimPrefix(uri, prefix)
	if secretName == "" {
		return nil, fmt.Errorf("invalid secrets manager URI %q: secret name is empty", uri)
	}

	result, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: &secretName,
	})
	if err != nil {
		return nil, fmt.Errorf("getting secret %q: %w", secretName, err)
	}

	if result.SecretString == nil {
		return nil, fmt.Errorf("secret %q has no string value", secretName)
	}

	return keyset.NewJSONReader(strings.NewReader(*result.SecretString)), nil
}

// NewTestAEAD creates a tink.AEAD backed by a fresh in-memory keyset. Keys
// are not persisted; use only in tests.
func NewTestAEAD() (tink.AEAD, error) {
	handle, err := keyset.NewHandle(aead.AES256GCMKeyTemplate())
	if err != nil {
		return nil, fmt.Errorf("creating test keyset handle: %w", err)
	}
	return NewAEAD(handle)
}
