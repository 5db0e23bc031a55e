package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvoiceNumber(t *testing.T) {
	got, err := InvoiceNumber("", 42)
	require.NoError(t, err)
	assert.Equal(t, "INV-00042", got)

	got, err = InvoiceNumber("ACME-", 123456)
	require.NoError(t, err)
	assert.Equal(t, "ACME-123456", got)
}

func TestInvoiceNumber_RejectsNonPositiveSequence(t *testing.T) {
	_, err := InvoiceNumber("INV-", 0)
	assert.Error(t, err)

	_, err = InvoiceNumber("INV-", -3)
	assert.Error(t, err)
}
