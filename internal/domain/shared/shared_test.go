package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestDomainError_Is(t *testing.T) {
	err := NewDomainErrorf(CodeNotFound, "Order %d not found", 7)

	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrInvalidState))
	assert.True(t, errors.Is(fmt.Errorf("wrapped: %w", err), ErrNotFound))
	assert.Equal(t, "Order 7 not found", err.Error())
}

func TestFilter_Normalize(t *testing.T) {
	tests := []struct {
		name     string
		in       Filter
		page     int
		pageSize int
	}{
		{"defaults", Filter{}, 1, DefaultPageSize},
		{"clamps page size", Filter{Page: 3, PageSize: 500}, 3, MaxPageSize},
		{"keeps valid values", Filter{Page: 2, PageSize: 50}, 2, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := tt.in.Normalize()
			assert.Equal(t, tt.page, f.Page)
			assert.Equal(t, tt.pageSize, f.PageSize)
			assert.Equal(t, "desc", f.OrderDir)
		})
	}

	assert.Equal(t, 40, Filter{Page: 3, PageSize: 20}.Offset())
}

func TestNewPaginated(t *testing.T) {
	p := NewPaginated([]int{1, 2}, 41, 1, 20)
	assert.Equal(t, 3, p.TotalPages)

	empty := NewPaginated([]int{}, 0, 1, 20)
	assert.Equal(t, 0, empty.TotalPages)
}

func TestTenantAggregateRoot(t *testing.T) {
	tenant := uuid.New()

	root := NewTenantAggregateRootWithCreator(tenant, uuid.Nil)
	assert.Nil(t, root.CreatedBy)
	assert.Equal(t, tenant, root.TenantID)
	assert.Equal(t, 1, root.Version)

	root.AddDomainEvent(&BaseDomainEvent{Type: "x"})
	events := root.PullDomainEvents()
	assert.Len(t, events, 1)
	assert.Empty(t, root.GetDomainEvents())
}
