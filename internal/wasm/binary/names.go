package binary

import (
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/wasmhost/wasmgate/internal/diag"
	"github.com/wasmhost/wasmgate/internal/wasm"
)

const (
	nameSubsectionModule   = 0
	nameSubsectionFunction = 1
	nameSubsectionLocal    = 2
)

// decodeNameSection decodes the "name" custom section's subsections.
// Per the format's own convention this parse is advisory: a malformed
// subsection, or a malformed entry within one, is dropped rather than
// failing the whole module decode, since debug names never affect
// executable semantics.
func decodeNameSection(data []byte) *wasm.NameSection {
	ns := &wasm.NameSection{Functions: map[wasm.Index]*wasm.FunctionNames{}}
	r := newReader(data)

	for !r.eof() {
		id, err := r.readByte()
		if err != nil {
			diag.DroppedName("header", "truncated name section", nil)
			return ns
		}
		size, err := r.readU32()
		if err != nil {
			diag.DroppedName(subsectionLabel(id), "truncated subsection size", nil)
			return ns
		}
		payload, err := r.readBytes(size)
		if err != nil {
			diag.DroppedName(subsectionLabel(id), "subsection payload shorter than declared size", nil)
			return ns
		}
		sr := newReader(payload)
		switch id {
		case nameSubsectionModule:
			if name, err := sr.readName(); err == nil {
				ns.ModuleName = name
			} else {
				diag.DroppedName("module", "malformed module name entry", nil)
			}
		case nameSubsectionFunction:
			decodeFunctionNameMap(sr, ns)
		case nameSubsectionLocal:
			decodeLocalNameMap(sr, ns)
		default:
			diag.DroppedName(subsectionLabel(id), "unknown name subsection id", nil)
		}
		// Unknown or partially-malformed subsections are simply skipped;
		// the outer loop already consumed exactly size bytes via payload.
	}
	return ns
}

func subsectionLabel(id byte) string {
	switch id {
	case nameSubsectionModule:
		return "module"
	case nameSubsectionFunction:
		return "function"
	case nameSubsectionLocal:
		return "local"
	default:
		return "unknown"
	}
}

func decodeFunctionNameMap(r *reader, ns *wasm.NameSection) {
	count, err := r.readU32()
	if err != nil {
		diag.DroppedName("function", "truncated function name count", nil)
		return
	}
	for i := uint32(0); i < count; i++ {
		idx, err := r.readU32()
		if err != nil {
			diag.DroppedName("function", "truncated function name entry", logrus.Fields{"entry": i})
			return
		}
		name, err := r.readName()
		if err != nil {
			diag.DroppedName("function", "malformed function name", logrus.Fields{"funcIndex": idx})
			return
		}
		fn, ok := ns.Functions[idx]
		if !ok {
			fn = &wasm.FunctionNames{Locals: wasm.NameMap{}}
			ns.Functions[idx] = fn
		}
		fn.Name = name
	}
}

func decodeLocalNameMap(r *reader, ns *wasm.NameSection) {
	funcCount, err := r.readU32()
	if err != nil {
		diag.DroppedName("local", "truncated local name function count", nil)
		return
	}
	for i := uint32(0); i < funcCount; i++ {
		funcIdx, err := r.readU32()
		if err != nil {
			diag.DroppedName("local", "truncated local name function index", logrus.Fields{"entry": i})
			return
		}
		localCount, err := r.readU32()
		if err != nil {
			diag.DroppedName("local", "truncated local name count", logrus.Fields{"funcIndex": funcIdx})
			return
		}
		fn, ok := ns.Functions[funcIdx]
		if !ok {
			fn = &wasm.FunctionNames{Locals: wasm.NameMap{}}
			ns.Functions[funcIdx] = fn
		}
		for j := uint32(0); j < localCount; j++ {
			localIdx, err := r.readU32()
			if err != nil {
				diag.DroppedName("local", "truncated local name index", logrus.Fields{"funcIndex": funcIdx})
				return
			}
			name, err := r.readName()
			if err != nil {
				diag.DroppedName("local", "malformed local name", logrus.Fields{"funcIndex": funcIdx, "localIndex": localIdx})
				return
			}
			fn.Locals[localIdx] = name
		}
	}
}

// encodeNameSection re-serializes a NameSection deterministically: indices
// within each subsection are emitted in ascending order regardless of map
// iteration order.
func encodeNameSection(ns *wasm.NameSection) []byte {
	w := newWriter()

	if ns.ModuleName != "" {
		mw := newWriter()
		mw.writeName(ns.ModuleName)
		w.writeSection(nameSubsectionModule, mw.Bytes())
	}

	funcIdxs := sortedIndices(ns.Functions)
	if len(funcIdxs) > 0 {
		haveAnyName := false
		for _, idx := range funcIdxs {
			if ns.Functions[idx].Name != "" {
				haveAnyName = true
				break
			}
		}
		if haveAnyName {
			fw := newWriter()
			fw.writeU32(uint32(len(funcIdxs)))
			for _, idx := range funcIdxs {
				fw.writeU32(idx)
				fw.writeName(ns.Functions[idx].Name)
			}
			w.writeSection(nameSubsectionFunction, fw.Bytes())
		}

		var withLocals []wasm.Index
		for _, idx := range funcIdxs {
			if len(ns.Functions[idx].Locals) > 0 {
				withLocals = append(withLocals, idx)
			}
		}
		if len(withLocals) > 0 {
			lw := newWriter()
			lw.writeU32(uint32(len(withLocals)))
			for _, funcIdx := range withLocals {
				locals := ns.Functions[funcIdx].Locals
				localIdxs := sortedIndices(locals)
				lw.writeU32(funcIdx)
				lw.writeU32(uint32(len(localIdxs)))
				for _, localIdx := range localIdxs {
					lw.writeU32(localIdx)
					lw.writeName(locals[localIdx])
				}
			}
			w.writeSection(nameSubsectionLocal, lw.Bytes())
		}
	}

	return w.Bytes()
}

func sortedIndices[V any](m map[wasm.Index]V) []wasm.Index {
	idxs := make([]wasm.Index, 0, len(m))
	for idx := range m {
		idxs = append(idxs, idx)
	}
	sort.Slice(idxs, func(i, j int) bool { return idxs[i] < idxs[j] })
	return idxs
}
