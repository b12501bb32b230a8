// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Command archivectl is a small flag-based front end driving
// archive.Store's put/fetch operations.
package main

import (
	"bufio"
	"bytes"
	"flag"
	"fmt"
	"os"

	"github.com/tuplearchive/archive/archive"
	"github.com/tuplearchive/archive/ingest/jsonfmt"
	"github.com/tuplearchive/archive/ingest/linep"
	"github.com/tuplearchive/archive/value"
)

var (
	dashv    bool
	dashfmt  string
	dashlim  int
	dashprop string
	dashctx  string
)

func init() {
	flag.BoolVar(&dashv, "v", false, "verbose")
	flag.StringVar(&dashfmt, "fmt", "linep", "input format for 'put': linep or json")
	flag.IntVar(&dashlim, "limit", 0, "fetch: per-property result limit (0 = unlimited)")
	flag.StringVar(&dashprop, "property", "", "fetch: property URI filter (empty = any)")
	flag.StringVar(&dashctx, "context", "", "fetch: context URI filter (empty = any)")
}

func exitf(f string, args ...any) {
	fmt.Fprintf(os.Stderr, f+"\n", args...)
	os.Exit(1)
}

func logf(f string, args ...any) {
	if dashv {
		fmt.Fprintf(os.Stderr, f+"\n", args...)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage:\n")
	fmt.Fprintf(os.Stderr, "    %s [-v] [-fmt linep|json] put <archive-dir> <input-file>\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "        decode <input-file> and put its tuples into <archive-dir>\n")
	fmt.Fprintf(os.Stderr, "    %s [-property <uri>] [-context <uri>] [-limit <n>] fetch <archive-dir> <item-uri>\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "        fetch tuples for <item-uri>, most recent first\n")
	fmt.Fprintf(os.Stderr, "    %s properties <archive-dir> <item-uri>\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "        list the distinct property URIs seen for <item-uri>\n")
	fmt.Fprintf(os.Stderr, "flag usage:\n")
	flag.Usage()
}

func main() {
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	switch args[0] {
	case "put":
		if len(args) != 3 {
			exitf("usage: put <archive-dir> <input-file>")
		}
		runPut(args[1], args[2])
	case "fetch":
		if len(args) != 3 {
			exitf("usage: fetch <archive-dir> <item-uri>")
		}
		runFetch(args[1], args[2])
	case "properties":
		if len(args) != 3 {
			exitf("usage: properties <archive-dir> <item-uri>")
		}
		runProperties(args[1], args[2])
	default:
		usage()
		os.Exit(1)
	}
}

func openStore(dir string) *archive.Store {
	st, err := archive.Open(dir)
	if err != nil {
		exitf("opening archive %q: %s", dir, err)
	}
	return st
}

func runPut(dir, inputPath string) {
	st := openStore(dir)
	defer st.Close()

	data, err := os.ReadFile(inputPath)
	if err != nil {
		exitf("reading %q: %s", inputPath, err)
	}

	var tuples []archive.Tuple
	switch dashfmt {
	case "linep":
		sc := bufio.NewScanner(bytes.NewReader(data))
		for sc.Scan() {
			tup, ok, err := linep.ParseLine(sc.Text())
			if err != nil {
				exitf("%s", err)
			}
			if ok {
				tuples = append(tuples, tup)
			}
		}
		if err := sc.Err(); err != nil {
			exitf("scanning %q: %s", inputPath, err)
		}
	case "json":
		tuples, err = jsonfmt.Decode(data)
		if err != nil {
			exitf("%s", err)
		}
	default:
		exitf("unknown -fmt %q (want linep or json)", dashfmt)
	}

	logf("decoded %d tuples from %q", len(tuples), inputPath)
	if err := st.Put(tuples); err != nil {
		exitf("put: %s", err)
	}
	logf("put %d tuples into %q", len(tuples), dir)
}

func runFetch(dir, item string) {
	st := openStore(dir)
	defer st.Close()

	it, err := st.Fetch(item, dashprop, dashctx, dashprop != "", dashctx != "", dashlim)
	if err != nil {
		exitf("fetch: %s", err)
	}
	defer it.Close()

	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()
	for {
		tup, ok := it.Next()
		if !ok {
			break
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n", tup.Item, tup.Property, tup.Context, tup.Time, tup.SeqNr, formatValue(tup.Value))
	}
}

// formatValue renders a Value for display; Value's own accessors
// return (T, bool) rather than implementing fmt.Stringer, so this is
// a small one-off pretty-printer for the CLI's "fetch" output.
func formatValue(v value.Value) string {
	switch v.Kind() {
	case value.KindInt32:
		n, _ := v.Int32()
		return fmt.Sprintf("%d", n)
	case value.KindInt64:
		n, _ := v.Int64()
		return fmt.Sprintf("%d", n)
	case value.KindFloat32:
		f, _ := v.Float32()
		return fmt.Sprintf("%g", f)
	case value.KindFloat64:
		f, _ := v.Float64()
		return fmt.Sprintf("%g", f)
	case value.KindString:
		s, _ := v.String()
		return s
	case value.KindBool:
		b, _ := v.Bool()
		return fmt.Sprintf("%t", b)
	case value.KindShort:
		n, _ := v.Short()
		return fmt.Sprintf("%d", n)
	case value.KindURI:
		s, _ := v.URI()
		return s
	case value.KindBigInt:
		n, _ := v.BigInt()
		return n.String()
	case value.KindBigDecimal:
		unscaled, scale, _ := v.BigDecimal()
		return fmt.Sprintf("%se%d", unscaled.String(), -scale)
	case value.KindRecord:
		rec, _ := v.Record()
		return fmt.Sprintf("<record:%d entries>", rec.Len())
	default:
		return "<invalid>"
	}
}

func runProperties(dir, item string) {
	st := openStore(dir)
	defer st.Close()

	props, err := st.Properties(item)
	if err != nil {
		exitf("properties: %s", err)
	}
	for _, p := range props {
		fmt.Println(p)
	}
}
