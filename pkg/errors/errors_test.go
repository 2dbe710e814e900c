package errors_test

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	importerrors "github.com/yashrajoria/catalog-import/pkg/errors"
)

func TestErrorMatchesByKind(t *testing.T) {
	err := importerrors.InvalidSchema("uploads/foo.csv", []string{"foo", "bar"})

	assert.True(t, stderrors.Is(err, importerrors.ErrInvalidSchema))
	assert.False(t, stderrors.Is(err, importerrors.ErrWriteFailure))
	assert.Contains(t, err.Error(), "uploads/foo.csv")
	assert.Contains(t, err.Error(), "foo,bar")
}

func TestErrorUnwrapsCause(t *testing.T) {
	cause := fmt.Errorf("access denied")
	err := fmt.Errorf("record 0: %w", importerrors.RetrievalFailure("products", "a.csv", cause))

	assert.True(t, stderrors.Is(err, importerrors.ErrRetrievalFailure))
	assert.True(t, stderrors.Is(err, cause))
	assert.Equal(t, importerrors.KindRetrievalFailure, importerrors.KindOf(err))
	assert.Equal(t, importerrors.Kind(""), importerrors.KindOf(cause))
}

func TestWriteFailureNamesSKU(t *testing.T) {
	err := importerrors.WriteFailure("A1", fmt.Errorf("throttled"))

	assert.Equal(t, `WriteFailure: write sku "A1": throttled`, err.Error())
}
