package mddi

import (
	"github.com/rcrowley/go-metrics"
)

type linkMetrics struct {
	revPackets    metrics.Counter
	framingFaults metrics.Counter
	crcErrors     metrics.Counter
	readTimeouts  metrics.Counter
	readFaults    metrics.Counter
	readRetries   metrics.Counter
	mismatches    metrics.Counter
	writeTimeouts metrics.Counter
	waitTimeouts  metrics.Counter
	absent        metrics.Counter
}

func newLinkMetrics(name string) *linkMetrics {
	p := "mddi." + name + "."
	return &linkMetrics{
		revPackets:    metrics.GetOrRegisterCounter(p+"rev.packets", nil),
		framingFaults: metrics.GetOrRegisterCounter(p+"rev.framing_faults", nil),
		crcErrors:     metrics.GetOrRegisterCounter(p+"rev.crc_errors", nil),
		readTimeouts:  metrics.GetOrRegisterCounter(p+"read.timeouts", nil),
		readFaults:    metrics.GetOrRegisterCounter(p+"read.faults", nil),
		readRetries:   metrics.GetOrRegisterCounter(p+"read.retries", nil),
		mismatches:    metrics.GetOrRegisterCounter(p+"read.mismatches", nil),
		writeTimeouts: metrics.GetOrRegisterCounter(p+"write.timeouts", nil),
		waitTimeouts:  metrics.GetOrRegisterCounter(p+"wait.timeouts", nil),
		absent:        metrics.GetOrRegisterCounter(p+"bringup.absent", nil),
	}
}
