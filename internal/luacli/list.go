// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

package luacli

import (
	"bytes"
	"fmt"
	"os"

	"shadowluac.dev/pkg/internal/luacode"
)

// printListing parses output (a freshly re-dumped standard chunk) and
// prints a luac(1)-style disassembly to stderr, named after path. It's a
// debugging aid for --list, not part of the decrypt pipeline: a listing
// failure is reported to the caller but never aborts a decrypt that already
// succeeded.
func printListing(path string, output []byte) error {
	var proto luacode.Prototype
	if err := proto.UnmarshalBinary(output); err != nil {
		return fmt.Errorf("parse decrypted output for listing: %w", err)
	}
	functionNames := make(map[*luacode.Prototype]string)
	nameFunctions(functionNames, &proto)
	return printFunction(os.Stderr, &proto, functionNames, 1)
}

func printFunction(w *os.File, f *luacode.Prototype, functionNames map[*luacode.Prototype]string, pcBase int) error {
	var source string
	if s, ok := f.Source.Abstract(); ok {
		source = s
	} else if s, ok := f.Source.Filename(); ok {
		source = s
	} else {
		source = "(bstring)"
	}
	kind := "function"
	if f.IsMainChunk() {
		kind = "main"
	}
	if _, err := fmt.Fprintf(
		w,
		"\n%s <%s:%d,%d> (%d instructions for %s)\n",
		kind, source, f.LineDefined, f.LastLineDefined, len(f.Code), functionNames[f],
	); err != nil {
		return err
	}

	lineBuf := new(bytes.Buffer)
	for pc, i := range f.Code {
		lineBuf.Reset()
		fmt.Fprintf(lineBuf, "\t%d\t", pcBase+pc)
		if pc < f.LineInfo.Len() {
			fmt.Fprintf(lineBuf, "[%d]\t", f.LineInfo.At(pc))
		} else {
			lineBuf.WriteString("[-]\t")
		}
		lineBuf.WriteString(i.String())

		switch i.OpCode() {
		case luacode.OpLoadK:
			if bx := i.ArgBx(); int(bx) < len(f.Constants) {
				fmt.Fprintf(lineBuf, "\t; %v", f.Constants[bx])
			}
		case luacode.OpClosure:
			if bx := i.ArgBx(); int(bx) < len(f.Functions) {
				fmt.Fprintf(lineBuf, "\t; %s", functionNames[f.Functions[bx]])
			}
		case luacode.OpJMP:
			fmt.Fprintf(lineBuf, "\t; to %d", pcBase+pc+1+int(i.J()))
		}

		lineBuf.WriteByte('\n')
		if _, err := w.Write(lineBuf.Bytes()); err != nil {
			return err
		}
	}

	for _, nested := range f.Functions {
		if err := printFunction(w, nested, functionNames, pcBase); err != nil {
			return err
		}
	}
	return nil
}

func nameFunctions(names map[*luacode.Prototype]string, f *luacode.Prototype) {
	base := names[f]
	isTop := base == ""
	if isTop {
		if f.IsMainChunk() {
			base = "main"
		} else {
			base = "top"
		}
		names[f] = base
	}

	for i, nested := range f.Functions {
		var name string
		if isTop {
			name = fmt.Sprintf("F[%d]", i)
		} else {
			name = fmt.Sprintf("%s[%d]", base, i)
		}
		names[nested] = name
		nameFunctions(names, nested)
	}
}
