package wire

// FNV-1a 64-bit constants.
const (
	fnvOffset64 uint64 = 0xcbf29ce484222325
	fnvPrime64  uint64 = 0x100000001b3
)

// FNV1a64 hashes an arbitrary byte sequence.
func FNV1a64(data []byte) uint64 {
	h := fnvOffset64
	for _, b := range data {
		h ^= uint64(b)
		h *= fnvPrime64
	}
	return h
}

// MethodID hashes a textual method name ("Service.Method") into its 64-bit
// method id. There's no compile-time evaluation in Go for this; the
// idiomatic substitute is to call MethodID once at package initialization
// time and hold the result in a package-level var, e.g.:
//
//	var MethodEcho = wire.MethodID("Example.Echo")
//
// MethodID and FNV1a64 must agree bit-exactly: MethodID is simply FNV1a64
// over the name's UTF-8 bytes.
func MethodID(name string) uint64 {
	return FNV1a64([]byte(name))
}
