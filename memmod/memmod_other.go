//go:build !unix

package memmod

func reserve(size int) ([]byte, error) {
	return make([]byte, size), nil
}

func release([]byte) error {
	return nil
}

func protectReadOnly([]byte) error {
	return nil
}
