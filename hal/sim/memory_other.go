//go:build !unix

package sim

func allocPages(n int) ([]byte, error) {
	return make([]byte, n), nil
}

func freePages([]byte) error {
	return nil
}
