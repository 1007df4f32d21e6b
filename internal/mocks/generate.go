package mocks

//go:generate mockery --name TxRunner --srcpkg github.com/aevon-lab/project-tally/internal/core/storage --output ./storage --outpkg storagemocks --with-expecter
