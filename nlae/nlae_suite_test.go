package nlae

import (
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func TestNlae(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "NLAE Suite")
}
