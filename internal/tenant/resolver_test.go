package tenant_test

import (
	"context"
	"errors"
	"testing"

	"github.com/fyrsmithlabs/ragd/internal/tenant"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type stubDirectory struct {
	names map[string]string
	err   error
}

func (d *stubDirectory) Lookup(_ context.Context, tenantID string) (string, error) {
	if d.err != nil {
		return "", d.err
	}
	name, ok := d.names[tenantID]
	if !ok {
		return "", tenant.ErrNotFound
	}
	return name, nil
}

func TestResolver_Label(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		directory tenant.Directory
		tenantID  string
		want      string
	}{
		{
			name:      "resolves display name",
			directory: &stubDirectory{names: map[string]string{"t1": "Acme Corp"}},
			tenantID:  "t1",
			want:      "Acme Corp",
		},
		{
			name:      "unknown tenant falls back to id",
			directory: &stubDirectory{names: map[string]string{}},
			tenantID:  "t2",
			want:      "t2",
		},
		{
			name:      "directory error falls back to id",
			directory: &stubDirectory{err: errors.New("store unreachable")},
			tenantID:  "t3",
			want:      "t3",
		},
		{
			name:      "empty display name falls back to id",
			directory: &stubDirectory{names: map[string]string{"t4": ""}},
			tenantID:  "t4",
			want:      "t4",
		},
		{
			name:      "nil directory falls back to id",
			directory: nil,
			tenantID:  "t5",
			want:      "t5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := tenant.NewResolver(tt.directory, zap.NewNop())
			assert.Equal(t, tt.want, r.Label(ctx, tt.tenantID))
		})
	}
}
