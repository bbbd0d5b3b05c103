package testutil

import (
	"bytes"
	"fmt"

	"github.com/reglet-dev/dylib-host/internal/abi"
)

// InPlaceMessage is the payload written by the reference in-place library,
// terminator included.
const InPlaceMessage = "Hello from dlib (in-place)!\x00"

// LegacyPrefix is prepended to the input by the reference by-value library.
const LegacyPrefix = "Hello from the dynamic library! You sent: "

// Guest memory layout of generated modules.
const (
	messageOffset = 1024
	prefixOffset  = 2048
	heapBase      = 4096
	memoryPages   = 4
)

// ExchangeModule describes a WebAssembly module implementing the exchange ABI.
type ExchangeModule struct {
	// Message is written by exchange_inplace. Defaults to InPlaceMessage.
	Message string

	// Revision is the parameter count of exchange_inplace (2, 3 or 4). Defaults to 2.
	Revision int

	// Advertise exports exchange_abi_version returning AdvertisedRevision,
	// or Revision when AdvertisedRevision is zero.
	Advertise          bool
	AdvertisedRevision uint32

	// OmitInPlace leaves exchange_inplace unexported.
	OmitInPlace bool

	// Legacy exports the by-value exchange function.
	Legacy bool

	// NullLegacy makes exchange return a null packed value.
	NullLegacy bool

	// Overflow makes exchange_inplace report capacity+1 bytes written.
	Overflow bool

	// OmitAllocator leaves allocate and deallocate unexported.
	OmitAllocator bool
}

// Function indices. All functions are always defined; exports vary.
const (
	fnAllocate = iota
	fnDeallocate
	fnInPlace
	fnVersion
	fnExchange
	fnReleaseCount
)

// wasm opcodes used by the generated bodies.
const (
	opIf          = 0x04
	opEnd         = 0x0B
	opReturn      = 0x0F
	opCall        = 0x10
	opLocalGet    = 0x20
	opLocalSet    = 0x21
	opGlobalGet   = 0x23
	opGlobalSet   = 0x24
	opI32Store8   = 0x3A
	opI32Const    = 0x41
	opI64Const    = 0x42
	opI32Eqz      = 0x45
	opI32LtU      = 0x49
	opI32Add      = 0x6A
	opI32Sub      = 0x6B
	opI64Or       = 0x84
	opI64Shl      = 0x86
	opI64ExtendU  = 0xAD
	opPrefixFC    = 0xFC
	opMemoryCopy  = 0x0A
	blockTypeVoid = 0x40
	valI32        = 0x7F
	valI64        = 0x7E
)

// Globals: 0 heap pointer, 1 release counter, 2 live allocations.
const (
	globalHeap = iota
	globalReleased
	globalLive
)

// Build assembles the module binary.
func (m ExchangeModule) Build() []byte {
	if m.Message == "" {
		m.Message = InPlaceMessage
	}
	if m.Revision == 0 {
		m.Revision = 2
	}
	if m.Revision < 2 || m.Revision > 4 {
		panic(fmt.Sprintf("testutil: unsupported revision %d", m.Revision))
	}
	if len(m.Message) > prefixOffset-messageOffset || len(LegacyPrefix) > heapBase-prefixOffset {
		panic("testutil: payload does not fit the data layout")
	}

	var out bytes.Buffer
	out.Write([]byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00})

	// Type section.
	inPlaceParams := make([]byte, m.Revision)
	for i := range inPlaceParams {
		inPlaceParams[i] = valI32
	}
	types := [][]byte{
		funcType([]byte{valI32}, []byte{valI32}),         // 0 allocate
		funcType([]byte{valI32, valI32}, nil),            // 1 deallocate
		funcType(inPlaceParams, []byte{valI32}),          // 2 exchange_inplace
		funcType(nil, []byte{valI32}),                    // 3 () -> i32
		funcType([]byte{valI32, valI32}, []byte{valI64}), // 4 exchange
	}
	writeSection(&out, 1, vector(types))

	// Function section: type index per function.
	writeSection(&out, 3, vector([][]byte{{0}, {1}, {2}, {3}, {4}, {3}}))

	// Memory section: one memory, min pages, no max.
	writeSection(&out, 5, vector([][]byte{append([]byte{0x00}, uleb(memoryPages)...)}))

	// Global section.
	writeSection(&out, 6, vector([][]byte{
		mutableI32Global(heapBase),
		mutableI32Global(0),
		mutableI32Global(0),
	}))

	// Export section.
	exports := [][]byte{exportEntry("memory", 0x02, 0)}
	if !m.OmitAllocator {
		exports = append(exports,
			exportEntry("allocate", 0x00, fnAllocate),
			exportEntry("deallocate", 0x00, fnDeallocate))
	}
	if !m.OmitInPlace {
		exports = append(exports, exportEntry("exchange_inplace", 0x00, fnInPlace))
	}
	if m.Advertise {
		exports = append(exports, exportEntry("exchange_abi_version", 0x00, fnVersion))
	}
	if m.Legacy {
		exports = append(exports, exportEntry("exchange", 0x00, fnExchange))
	}
	exports = append(exports, exportEntry("release_count", 0x00, fnReleaseCount))
	writeSection(&out, 7, vector(exports))

	// Code section.
	bodies := [][]byte{
		codeEntry(nil, m.allocateBody()),
		codeEntry(nil, m.deallocateBody()),
		codeEntry(nil, m.inPlaceBody()),
		codeEntry(nil, m.versionBody()),
		codeEntry([]byte{0x01, 0x01, valI32}, m.exchangeBody()),
		codeEntry(nil, concat([]byte{opGlobalGet}, uleb(globalReleased), []byte{opEnd})),
	}
	writeSection(&out, 10, vector(bodies))

	// Data section: message and legacy prefix.
	writeSection(&out, 11, vector([][]byte{
		dataSegment(messageOffset, []byte(m.Message)),
		dataSegment(prefixOffset, []byte(LegacyPrefix)),
	}))

	return out.Bytes()
}

// allocate(size) bumps the heap pointer and returns the previous value.
func (m ExchangeModule) allocateBody() []byte {
	return concat(
		globalGet(globalLive), i32Const(1), []byte{opI32Add}, globalSet(globalLive),
		globalGet(globalHeap),
		globalGet(globalHeap), localGet(0), []byte{opI32Add}, globalSet(globalHeap),
		[]byte{opEnd},
	)
}

// deallocate(ptr, len) counts releases and rewinds the heap once nothing is live.
func (m ExchangeModule) deallocateBody() []byte {
	return concat(
		globalGet(globalReleased), i32Const(1), []byte{opI32Add}, globalSet(globalReleased),
		globalGet(globalLive), i32Const(1), []byte{opI32Sub}, globalSet(globalLive),
		globalGet(globalLive), []byte{opI32Eqz, opIf, blockTypeVoid},
		i32Const(heapBase), globalSet(globalHeap),
		[]byte{opEnd},
		[]byte{opEnd},
	)
}

// exchange_inplace writes Message when it fits; revision 4 honors query mode.
func (m ExchangeModule) inPlaceBody() []byte {
	n := int32(len(m.Message))
	if m.Overflow {
		return concat(localGet(1), i32Const(1), []byte{opI32Add}, []byte{opEnd})
	}
	body := concat(
		// if capacity < n { return 0 }
		localGet(1), i32Const(n), []byte{opI32LtU, opIf, blockTypeVoid},
		i32Const(0), []byte{opReturn},
		[]byte{opEnd},
	)
	if m.Revision == 4 {
		// if allow_mutation == 0 { return n }
		body = concat(body,
			localGet(3), []byte{opI32Eqz, opIf, blockTypeVoid},
			i32Const(n), []byte{opReturn},
			[]byte{opEnd},
		)
	}
	return concat(body,
		localGet(0), i32Const(messageOffset), i32Const(n), memoryCopy(),
		i32Const(n),
		[]byte{opEnd},
	)
}

func (m ExchangeModule) versionBody() []byte {
	v := m.AdvertisedRevision
	if v == 0 {
		v = uint32(m.Revision) //nolint:gosec // G115: revision is 2..4
	}
	return concat(i32Const(int32(v)), []byte{opEnd}) //nolint:gosec // G115: small test values
}

// exchange(ptr, len) allocates prefix+input+NUL and returns it packed.
func (m ExchangeModule) exchangeBody() []byte {
	if m.NullLegacy {
		return concat([]byte{opI64Const}, sleb(0), []byte{opEnd})
	}
	p := int32(len(LegacyPrefix))
	const out = 2
	return concat(
		// out = allocate(len + p + 1)
		localGet(1), i32Const(p+1), []byte{opI32Add}, []byte{opCall}, uleb(fnAllocate), localSet(out),
		// copy prefix
		localGet(out), i32Const(prefixOffset), i32Const(p), memoryCopy(),
		// copy input after the prefix
		localGet(out), i32Const(p), []byte{opI32Add}, localGet(0), localGet(1), memoryCopy(),
		// terminator
		localGet(out), i32Const(p), []byte{opI32Add}, localGet(1), []byte{opI32Add},
		i32Const(0), []byte{opI32Store8, 0x00, 0x00},
		// (out << abi.PtrHighBits) | (len + p + 1)
		localGet(out), []byte{opI64ExtendU}, []byte{opI64Const}, sleb(abi.PtrHighBits), []byte{opI64Shl},
		localGet(1), i32Const(p+1), []byte{opI32Add}, []byte{opI64ExtendU}, []byte{opI64Or},
		[]byte{opEnd},
	)
}

func funcType(params, results []byte) []byte {
	return concat([]byte{0x60}, uleb(uint32(len(params))), params, uleb(uint32(len(results))), results) //nolint:gosec // G115: tiny
}

func mutableI32Global(init int32) []byte {
	return concat([]byte{valI32, 0x01}, i32Const(init), []byte{opEnd})
}

func exportEntry(name string, kind byte, index uint32) []byte {
	return concat(uleb(uint32(len(name))), []byte(name), []byte{kind}, uleb(index)) //nolint:gosec // G115: tiny
}

func codeEntry(locals, body []byte) []byte {
	if locals == nil {
		locals = []byte{0x00}
	}
	fn := concat(locals, body)
	return concat(uleb(uint32(len(fn))), fn) //nolint:gosec // G115: tiny
}

func dataSegment(offset int32, data []byte) []byte {
	return concat([]byte{0x00}, i32Const(offset), []byte{opEnd}, uleb(uint32(len(data))), data) //nolint:gosec // G115: tiny
}

func writeSection(out *bytes.Buffer, id byte, payload []byte) {
	out.WriteByte(id)
	out.Write(uleb(uint32(len(payload)))) //nolint:gosec // G115: tiny
	out.Write(payload)
}

func vector(items [][]byte) []byte {
	return concat(append([][]byte{uleb(uint32(len(items)))}, items...)...) //nolint:gosec // G115: tiny
}

func localGet(i uint32) []byte  { return concat([]byte{opLocalGet}, uleb(i)) }
func localSet(i uint32) []byte  { return concat([]byte{opLocalSet}, uleb(i)) }
func globalGet(i uint32) []byte { return concat([]byte{opGlobalGet}, uleb(i)) }
func globalSet(i uint32) []byte { return concat([]byte{opGlobalSet}, uleb(i)) }
func i32Const(v int32) []byte   { return concat([]byte{opI32Const}, sleb(int64(v))) }
func memoryCopy() []byte        { return []byte{opPrefixFC, opMemoryCopy, 0x00, 0x00} }

func concat(parts ...[]byte) []byte {
	var b []byte
	for _, p := range parts {
		b = append(b, p...)
	}
	return b
}

func uleb(v uint32) []byte {
	var b []byte
	for {
		c := byte(v & 0x7F)
		v >>= 7
		if v != 0 {
			c |= 0x80
		}
		b = append(b, c)
		if v == 0 {
			return b
		}
	}
}

func sleb(v int64) []byte {
	var b []byte
	for {
		c := byte(v & 0x7F)
		v >>= 7
		done := (v == 0 && c&0x40 == 0) || (v == -1 && c&0x40 != 0)
		if !done {
			c |= 0x80
		}
		b = append(b, c)
		if done {
			return b
		}
	}
}
