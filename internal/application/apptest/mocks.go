package apptest

import (
	"go.uber.org/mock/gomock"

	auditmocks "github.com/petition-hub/petition-hub/internal/domain/audit/mocks"
	invalidationmocks "github.com/petition-hub/petition-hub/internal/domain/invalidation/mocks"
	jobmocks "github.com/petition-hub/petition-hub/internal/domain/job/mocks"
	journalmocks "github.com/petition-hub/petition-hub/internal/domain/journal/mocks"
	petitionmocks "github.com/petition-hub/petition-hub/internal/domain/petition/mocks"
	signaturemocks "github.com/petition-hub/petition-hub/internal/domain/signature/mocks"
	"github.com/petition-hub/petition-hub/internal/domain/unitofwork"
)

// Mocks bundles one mock per repository.
type Mocks struct {
	Petitions     *petitionmocks.MockRepository
	Signatures    *signaturemocks.MockRepository
	Journals      *journalmocks.MockRepository
	Invalidations *invalidationmocks.MockRepository
	Jobs          *jobmocks.MockQueue
	Audit         *auditmocks.MockRepository
}

func NewMocks(ctrl *gomock.Controller) *Mocks {
	return &Mocks{
		Petitions:     petitionmocks.NewMockRepository(ctrl),
		Signatures:    signaturemocks.NewMockRepository(ctrl),
		Journals:      journalmocks.NewMockRepository(ctrl),
		Invalidations: invalidationmocks.NewMockRepository(ctrl),
		Jobs:          jobmocks.NewMockQueue(ctrl),
		Audit:         auditmocks.NewMockRepository(ctrl),
	}
}

// Repositories binds the mocks as one transaction's repositories.
func (m *Mocks) Repositories() unitofwork.Repositories {
	return unitofwork.Repositories{
		Petitions:     m.Petitions,
		Signatures:    m.Signatures,
		Journals:      m.Journals,
		Invalidations: m.Invalidations,
		Jobs:          m.Jobs,
	}
}

// Transactor returns a Transactor over the mocks.
func (m *Mocks) Transactor() *Transactor {
	return &Transactor{Repos: m.Repositories()}
}
