package ports

import "context"

// Secret represents a secret value fetched from a secret store
type Secret struct {
	Name  string
	Value string
}

// SecretManager abstracts secret retrieval (database credentials and the
// like) so the config layer does not depend on a specific cloud SDK
type SecretManager interface {
	GetSecret(ctx context.Context, name string) (*Secret, error)
}
