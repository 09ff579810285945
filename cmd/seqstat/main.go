// Command seqstat prints a summary of a FASTA file. It is the default
// command run by the process engine:
//
//	seqstat <job_id> <input>
package main

import (
	"fmt"
	"os"

	"github.com/me/bioclick/internal/seqstat"
)

func main() {
	if len(os.Args) != 3 {
		fmt.Fprintln(os.Stderr, "usage: seqstat <job_id> <input>")
		os.Exit(2)
	}
	jobID, path := os.Args[1], os.Args[2]

	f, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seqstat: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	st, err := seqstat.Summarize(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seqstat: %s: %v\n", path, err)
		os.Exit(1)
	}

	fmt.Printf("Job ID: %s\n", jobID)
	fmt.Printf("Input: %s\n", path)
	fmt.Printf("Bytes: %d\n", st.Bytes)
	fmt.Printf("Records: %d\n", st.Records)
	fmt.Printf("Residues: %d\n", st.Residues)
}
