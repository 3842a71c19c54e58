package trees

import (
	"os"
	"testing"

	"github.com/brettbedarf/mimic/internal/util"
)

func TestMain(m *testing.M) {
	util.InitializeLogger(util.ErrorLevel)
	os.Exit(m.Run())
}
