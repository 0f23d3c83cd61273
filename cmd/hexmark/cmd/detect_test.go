package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/drawscan/hexmark/internal/marker"
)

func TestPrintDetectionSummary(t *testing.T) {
	buf := new(bytes.Buffer)
	printDetectionSummary(buf, marker.DetectionSummary{
		Total: 3,
		ByLabel: map[string]int{
			"hexagon": 2,
			"octagon": 1,
		},
	})

	assert.Equal(t, "Detections: 3\n  hexagon: 2\n  octagon: 1\n", buf.String())
}

func TestPrintDetectionSummaryEmpty(t *testing.T) {
	buf := new(bytes.Buffer)
	printDetectionSummary(buf, marker.DetectionSummary{})
	assert.Equal(t, "Detections: 0\n", buf.String())
}

func TestDetectCommandFlags(t *testing.T) {
	assert.NotNil(t, detectCmd.Flags().Lookup("dir"))
	assert.NotNil(t, detectCmd.Flags().Lookup("display-threshold"))
	assert.NotNil(t, detectCmd.Flags().Lookup("no-enhance"))
}
