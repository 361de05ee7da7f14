// Command inspect dumps raw keys from a database for debugging. The
// keyspace is self-describing (every key carries its type prefix), so a
// prefix filter is all the tooling needs.
package main

import (
	"flag"
	"fmt"
	"os"

	"chatdb/pkg/logger"
	"chatdb/pkg/store"
)

func main() {
	var (
		path   string
		prefix string
		values bool
		limit  int
	)
	flag.StringVar(&path, "db", "", "database path to inspect")
	flag.StringVar(&prefix, "prefix", "", "key prefix filter (e.g. user:, chanmsg:c-1:)")
	flag.BoolVar(&values, "values", false, "print record values as well as keys")
	flag.IntVar(&limit, "limit", 0, "stop after this many keys (0 = all)")
	flag.Parse()
	if path == "" {
		fmt.Fprintln(os.Stderr, "--db required")
		os.Exit(2)
	}

	logger.Init("warn")
	st, err := store.Open(path, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open %s: %v\n", path, err)
		os.Exit(1)
	}
	defer st.Close()

	kvs, err := st.QueryPrefix(prefix, store.QueryOptions{Limit: limit})
	if err != nil {
		fmt.Fprintf(os.Stderr, "scan %q: %v\n", prefix, err)
		os.Exit(1)
	}
	for _, kv := range kvs {
		if values {
			fmt.Printf("%s\t%s\n", kv.Key, kv.Value)
		} else {
			fmt.Println(kv.Key)
		}
	}
	fmt.Fprintf(os.Stderr, "%d keys\n", len(kvs))
}
