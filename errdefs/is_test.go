package errdefs

import (
	"errors"
	"fmt"
	"testing"

	"gotest.tools/v3/assert"
)

// legacyCause is the Cause()-only wrapper shape some callers still produce
// (predating errors.Unwrap), alongside plain errors.Unwrap/errors.Join
// chains.
type legacyCause struct {
	err error
}

func withCause(err error) legacyCause {
	return legacyCause{err: err}
}

func (c legacyCause) Error() string {
	return c.err.Error()
}

func (c legacyCause) Cause() error {
	return c.err
}

func TestGetImplementerFindsNotFoundThroughChain(t *testing.T) {
	var layerNotFound errNotFound
	var badLayerSpec errInvalidParameter
	ioErr := errors.New("read /var/lib/naruto/abc123/metadata.json: no such file or directory")

	tests := map[string]struct {
		err      error
		expected bool
	}{
		"nil": {
			err: nil,
		},
		"direct-layer-not-found": {
			err:      layerNotFound,
			expected: true,
		},
		"direct-io-error": {
			err: ioErr,
		},
		"wrapped-layer-not-found": {
			err:      fmt.Errorf("resolving layer spec %q: %w", "root^2", layerNotFound),
			expected: true,
		},
		"wrapped-io-error": {
			err: fmt.Errorf("loading layer: %w", ioErr),
		},
		"doubly-wrapped-layer-not-found": {
			err:      fmt.Errorf("mount: %w", fmt.Errorf("find layer: %w", layerNotFound)),
			expected: true,
		},
		"doubly-wrapped-io-error": {
			err: fmt.Errorf("mount: %w", fmt.Errorf("find layer: %w", ioErr)),
		},
		"joined-with-layer-not-found": {
			err:      errors.Join(ioErr, layerNotFound),
			expected: true,
		},
		"joined-without-layer-not-found": {
			err: errors.Join(ioErr, ioErr),
		},
		"joined-invalid-param-and-not-found": {
			err: errors.Join(ioErr, badLayerSpec, layerNotFound),
		},
		"cause-chain-layer-not-found": {
			err:      withCause(layerNotFound),
			expected: true,
		},
		"joined-cause-chain-layer-not-found": {
			err:      errors.Join(ioErr, withCause(layerNotFound)),
			expected: true,
		},
		"joined-cause-chain-invalid-param-first": {
			err: errors.Join(ioErr, withCause(badLayerSpec), withCause(layerNotFound)),
		},
		"joined-cause-chain-io-error": {
			err: errors.Join(ioErr, withCause(ioErr)),
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			_, ok := getImplementer(tc.err).(ErrNotFound)
			assert.Equal(t, ok, tc.expected)
		})
	}
}
