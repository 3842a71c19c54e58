package keyspace

import (
	"testing"

	"go.uber.org/goleak"

	"github.com/brettbedarf/mimic/internal/util"
)

func TestMain(m *testing.M) {
	util.InitializeLogger(util.ErrorLevel)
	goleak.VerifyTestMain(m)
}
