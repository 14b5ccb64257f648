// Copyright (C) 1994-2024 Lua.org, PUC-Rio.
// Copyright 2024 The zb Authors
// SPDX-License-Identifier: MIT

/*
Package luacode reads and writes precompiled Lua 5.4 chunks: the
[Prototype] tree, its [Value] constants, and the binary container format
[Prototype.UnmarshalBinary] and [Prototype.MarshalBinary] implement. It acts
as the canonical Lua loader this module hands fully repaired, plaintext
bytecode to, and which hands back the re-encoded chunk a stock Lua 5.4 VM
can load directly.

# Provenance

This package is a hand-written conversion of parts of Lua 5.4.7 to Go,
specifically borrowing from:

  - lopcodes.h
  - lobject.h (for Proto)
  - ldump.c
  - lundump.c

Ideally, this package should continue to resemble upstream
so that improvements in Lua's binary format can be easily ported over.

# Lua License

Copyright (C) 1994-2024 Lua.org, PUC-Rio.

Permission is hereby granted, free of charge, to any person obtaining
a copy of this software and associated documentation files (the
"Software"), to deal in the Software without restriction, including
without limitation the rights to use, copy, modify, merge, publish,
distribute, sublicense, and/or sell copies of the Software, and to
permit persons to whom the Software is furnished to do so, subject to
the following conditions:

The above copyright notice and this permission notice shall be
included in all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND,
EXPRESS OR IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF
MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT.
IN NO EVENT SHALL THE AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY
CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER IN AN ACTION OF CONTRACT,
TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN CONNECTION WITH THE
SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
*/
package luacode
