package memory

import (
	"testing"

	"github.com/jafarshop/shopsync/internal/repository"
	"github.com/jafarshop/shopsync/internal/repository/repotest"
)

func TestMemoryRepositories(t *testing.T) {
	repotest.Run(t, func(*testing.T) *repository.Repositories { return NewRepositories() })
}
