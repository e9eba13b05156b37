package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	gonmea "github.com/adrianmo/go-nmea"
)

type nmeaSummary struct {
	Lines      int
	Sentences  int
	Invalid    int
	ValidRMC   int
	VoidRMC    int
	TypeCounts map[string]int
}

// summarizeNMEALog counts the sentences of a receiver capture. Blank lines
// are skipped; anything that fails to parse is counted as invalid.
func summarizeNMEALog(r io.Reader) (nmeaSummary, error) {
	s := nmeaSummary{TypeCounts: map[string]int{}}

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		s.Lines++

		sent, err := gonmea.Parse(line)
		if err != nil {
			s.Invalid++
			continue
		}
		s.Sentences++
		s.TypeCounts[sent.DataType()]++

		if rmc, ok := sent.(gonmea.RMC); ok {
			if rmc.Validity == gonmea.ValidRMC {
				s.ValidRMC++
			} else {
				s.VoidRMC++
			}
		}
	}
	return s, sc.Err()
}

func printNMEASummary(w io.Writer, path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return fmt.Errorf("path is empty")
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	s, err := summarizeNMEALog(f)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "path: %s\n", path)
	fmt.Fprintf(w, "lines: %d\n", s.Lines)
	fmt.Fprintf(w, "sentences: %d\n", s.Sentences)
	fmt.Fprintf(w, "invalid_lines: %d\n", s.Invalid)
	fmt.Fprintf(w, "rmc_valid: %d\n", s.ValidRMC)
	fmt.Fprintf(w, "rmc_void: %d\n", s.VoidRMC)

	keys := make([]string, 0, len(s.TypeCounts))
	for k := range s.TypeCounts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintf(w, "type_counts:\n")
	for _, k := range keys {
		fmt.Fprintf(w, "  %s: %d\n", k, s.TypeCounts[k])
	}
	return nil
}
