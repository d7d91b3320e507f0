package predicates

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// wasmSection encodes a module section. Contents stay under 128 bytes so the
// length fits a single LEB128 byte.
func wasmSection(id byte, content ...byte) []byte {
	return append([]byte{id, byte(len(content))}, content...)
}

// wasmName encodes a name prefixed by its length.
func wasmName(s string) []byte {
	return append([]byte{byte(len(s))}, s...)
}

// buildWASMModule assembles a module exporting memory, malloc (always 1024),
// free (no-op) and check, whose body is checkBody (locals and end opcode
// included). When withCheck is false the check export is omitted.
func buildWASMModule(checkBody []byte, withCheck bool) []byte {
	module := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

	// types: (i32)->i32, (i32)->(), (i32,i32)->i32
	module = append(module, wasmSection(0x01,
		0x03,
		0x60, 0x01, 0x7f, 0x01, 0x7f,
		0x60, 0x01, 0x7f, 0x00,
		0x60, 0x02, 0x7f, 0x7f, 0x01, 0x7f,
	)...)

	module = append(module, wasmSection(0x03, 0x03, 0x00, 0x01, 0x02)...)

	// one memory of one page
	module = append(module, wasmSection(0x05, 0x01, 0x00, 0x01)...)

	exports := []byte{0x03}
	exports = append(exports, wasmName("memory")...)
	exports = append(exports, 0x02, 0x00)
	exports = append(exports, wasmName("malloc")...)
	exports = append(exports, 0x00, 0x00)
	exports = append(exports, wasmName("free")...)
	exports = append(exports, 0x00, 0x01)
	if withCheck {
		exports[0] = 0x04
		exports = append(exports, wasmName("check")...)
		exports = append(exports, 0x00, 0x02)
	}
	module = append(module, wasmSection(0x07, exports...)...)

	mallocBody := []byte{0x00, 0x41, 0x80, 0x08, 0x0b} // i32.const 1024
	freeBody := []byte{0x00, 0x0b}

	code := []byte{0x03}
	code = append(code, byte(len(mallocBody)))
	code = append(code, mallocBody...)
	code = append(code, byte(len(freeBody)))
	code = append(code, freeBody...)
	code = append(code, byte(len(checkBody)))
	code = append(code, checkBody...)
	module = append(module, wasmSection(0x0a, code...)...)

	return module
}

// lengthAtLeast returns a check body computing len >= n. For single-letter
// names the JSON array has length 4k+1, so n = 9 holds from two elements on.
func lengthAtLeast(n byte) []byte {
	return []byte{0x00, 0x20, 0x01, 0x41, n, 0x4f, 0x0b} // local.get 1; i32.const n; i32.ge_u
}

// constant returns a check body returning v.
func constant(v byte) []byte {
	return []byte{0x00, 0x41, v, 0x0b}
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}
