package bco

import (
	"fmt"
	"strings"

	"github.com/csmcal/wf2wf/pkg/ir"
)

// Diff compares two BCOs per top-level domain, rendering a unified-style
// report. Domains absent from both documents are skipped; an empty string
// means the documents are identical domain by domain.
func Diff(a, b *Document) (string, error) {
	var out strings.Builder
	names := append([]string{}, DomainNames...)
	names = append(names, "object_id", "spec_version", "etag")
	for _, domain := range names {
		av, aok := a.Fields[domain]
		bv, bok := b.Fields[domain]
		if !aok && !bok {
			continue
		}
		ac, err := canonicalLines(av)
		if err != nil {
			return "", fmt.Errorf("canonicalize %s: %w", domain, err)
		}
		bc, err := canonicalLines(bv)
		if err != nil {
			return "", fmt.Errorf("canonicalize %s: %w", domain, err)
		}
		if ac == bc {
			continue
		}
		fmt.Fprintf(&out, "--- a/%s\n+++ b/%s\n", domain, domain)
		for _, line := range diffLines(strings.Split(ac, "\n"), strings.Split(bc, "\n")) {
			out.WriteString(line + "\n")
		}
	}
	return out.String(), nil
}

func canonicalLines(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	canon, err := ir.CanonicalJSON(v)
	if err != nil {
		return "", err
	}
	return string(canon), nil
}

// diffLines renders removed lines with "-" and added lines with "+", using a
// simple common-prefix/suffix trim. Domains are single canonical JSON lines
// in practice, so an LCS diff would buy nothing.
func diffLines(a, b []string) []string {
	start := 0
	for start < len(a) && start < len(b) && a[start] == b[start] {
		start++
	}
	endA, endB := len(a), len(b)
	for endA > start && endB > start && a[endA-1] == b[endB-1] {
		endA--
		endB--
	}
	var out []string
	for _, line := range a[start:endA] {
		out = append(out, "-"+line)
	}
	for _, line := range b[start:endB] {
		out = append(out, "+"+line)
	}
	return out
}
