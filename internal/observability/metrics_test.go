package observability

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordTx(t *testing.T) {
	before := testutil.ToFloat64(DefaultMetrics.TxSubmitted.WithLabelValues("approve"))
	RecordTx("approve")
	after := testutil.ToFloat64(DefaultMetrics.TxSubmitted.WithLabelValues("approve"))
	if after != before+1 {
		t.Errorf("tx_submitted{approve} = %v, want %v", after, before+1)
	}
}

func TestRecordTxFailure(t *testing.T) {
	before := testutil.ToFloat64(DefaultMetrics.TxFailed.WithLabelValues("USER_REJECTED"))
	RecordTxFailure("USER_REJECTED")
	after := testutil.ToFloat64(DefaultMetrics.TxFailed.WithLabelValues("USER_REJECTED"))
	if after != before+1 {
		t.Errorf("tx_failed{USER_REJECTED} = %v, want %v", after, before+1)
	}
}

func TestRecordMulticallBatch(t *testing.T) {
	before := testutil.ToFloat64(DefaultMetrics.MulticallBatches)
	RecordMulticallBatch()
	after := testutil.ToFloat64(DefaultMetrics.MulticallBatches)
	if after != before+1 {
		t.Errorf("multicall_batches = %v, want %v", after, before+1)
	}
}

func TestRecordMetadataResolution(t *testing.T) {
	before := testutil.ToFloat64(DefaultMetrics.MetadataResolutions.WithLabelValues("hit"))
	RecordMetadataResolution("hit")
	after := testutil.ToFloat64(DefaultMetrics.MetadataResolutions.WithLabelValues("hit"))
	if after != before+1 {
		t.Errorf("resolutions{hit} = %v, want %v", after, before+1)
	}
}

func TestRecordDBQuery(t *testing.T) {
	errBefore := testutil.ToFloat64(DefaultMetrics.DBQueryErrors.WithLabelValues("postgres", "select"))

	RecordDBQuery("postgres", "select", 0.01, nil)
	if got := testutil.ToFloat64(DefaultMetrics.DBQueryErrors.WithLabelValues("postgres", "select")); got != errBefore {
		t.Errorf("query_errors after success = %v, want %v", got, errBefore)
	}

	RecordDBQuery("postgres", "select", 0.01, errors.New("connection reset"))
	if got := testutil.ToFloat64(DefaultMetrics.DBQueryErrors.WithLabelValues("postgres", "select")); got != errBefore+1 {
		t.Errorf("query_errors after failure = %v, want %v", got, errBefore+1)
	}

	if testutil.CollectAndCount(DefaultMetrics.DBQueryDuration) == 0 {
		t.Error("query_duration recorded no samples")
	}
}
