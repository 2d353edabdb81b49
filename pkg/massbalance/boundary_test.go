package massbalance

import (
	"testing"

	"metalcore/testutil"
)

// The calculator is pure arithmetic shared by the service layer and the
// offline verifier; it must not reach into internal packages.
func TestCalculatorDoesNotImportInternal(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.InternalImportForbidden, "massbalance stays a leaf package")
}
