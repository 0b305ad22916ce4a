package metricsexport

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNoopExporter_AcceptsBatchWithoutError(t *testing.T) {
	var e Exporter = NoopExporter{}
	err := e.Export(context.Background(), []BookSize{{Name: "a", DiskSz: 10, MemSize: 5}})
	require.NoError(t, err)
}
