package resource

import (
	"regexp"
	"strings"
)

// Command heuristics: well-known bioinformatics and ML tools imply resource
// shapes. Matching is a lowercase substring scan over command plus script.

var cpuHeavyTools = []string{"bwa", "bowtie", "star", "hisat2", "salmon", "kallisto"}
var variantCallers = []string{"gatk", "freebayes", "mutect", "varscan"}
var alignmentUtils = []string{"samtools", "bcftools", "bedtools"}
var qcTools = []string{"fastqc", "multiqc", "qualimap"}
var gpuTools = []string{"tensorflow", "pytorch", "keras", "cuda", "nvidia"}
var bigDataExts = []string{".bam", ".sam", ".vcf", ".fastq", ".fq"}
var smallDataExts = []string{".txt", ".csv", ".tsv", ".json", ".yaml"}

var gpuFlagPattern = regexp.MustCompile(`(?:--gpus?|-g)\s+(\d+)`)

// InferFromCommand derives a resource spec from command/script content.
// CPU and Threads are always set (1 when no tool matches); the other
// unmatched fields stay nil so callers can layer environment defaults on top.
func InferFromCommand(command, script string) Spec {
	var s Spec
	content := strings.ToLower(command + " " + script)
	if strings.TrimSpace(content) == "" {
		s.CPU = i64(1)
		s.Threads = i64(1)
		return s
	}

	switch {
	case containsAny(content, cpuHeavyTools):
		s.CPU = i64(4)
	case containsAny(content, variantCallers):
		s.CPU = i64(2)
	default:
		s.CPU = i64(1)
	}

	switch {
	case containsAny(content, variantCallers):
		s.MemMB = i64(8192)
	case containsAny(content, []string{"star", "hisat2", "salmon", "kallisto"}):
		s.MemMB = i64(4096)
	case containsAny(content, append([]string{"bwa", "bowtie"}, alignmentUtils...)):
		s.MemMB = i64(2048)
	case containsAny(content, qcTools):
		s.MemMB = i64(1024)
	}

	switch {
	case containsAny(content, bigDataExts):
		s.DiskMB = i64(4096)
	case containsAny(content, smallDataExts):
		s.DiskMB = i64(1024)
	}

	if m := gpuFlagPattern.FindStringSubmatch(content); m != nil {
		n := int64(0)
		for _, c := range m[1] {
			n = n*10 + int64(c-'0')
		}
		s.GPU = i64(n)
	} else if containsAny(content, gpuTools) {
		s.GPU = i64(1)
		s.GPUMemMB = i64(4096)
	}

	if s.Threads == nil {
		s.Threads = i64(1)
	}
	return s
}

func containsAny(content string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(content, n) {
			return true
		}
	}
	return false
}
