package embedding

import (
	"os"
	"testing"

	"github.com/ayoubdya/Moroccan-AI-Law-Assistant/pkg/log"
)

func TestMain(m *testing.M) {
	log.Init("error", "console", "")
	os.Exit(m.Run())
}
