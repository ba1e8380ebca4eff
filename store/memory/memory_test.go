package memory

import (
	"testing"

	"github.com/yitech/pricechart/store/storetest"
)

func TestStore(t *testing.T) {
	storetest.Run(t, New())
}
