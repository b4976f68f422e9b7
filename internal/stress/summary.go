package stress

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Summary is the persisted outcome of one stress run.
type Summary struct {
	Mode       string `yaml:"mode"`
	Threads    int    `yaml:"threads"`
	Slots      int    `yaml:"slots"`
	Passes     int64  `yaml:"passes"`
	Duration   string `yaml:"duration"`
	Checksum   string `yaml:"checksum"`
	LiveBlocks int64  `yaml:"live_blocks"`
	LiveBytes  int64  `yaml:"live_bytes"`
	Verified   bool   `yaml:"verified"`
}

// writeSummary persists the run outcome next to the config, when asked to.
func (t *Tester) writeSummary(elapsed time.Duration, verified bool) {
	path := t.cfg.Stress.Report.File
	if path == "" {
		return
	}

	s := Summary{
		Mode:       t.cfg.Stress.Mode,
		Threads:    t.cfg.Stress.Threads,
		Slots:      t.cfg.Stress.Slots,
		Passes:     t.passes.Load(),
		Duration:   elapsed.Round(time.Millisecond).String(),
		Checksum:   fmt.Sprintf("%#x", t.Checksum()),
		LiveBlocks: t.al.Stats().LiveBlocks(),
		LiveBytes:  t.al.Stats().LiveBytes(),
		Verified:   verified,
	}

	raw, err := yaml.Marshal(&s)
	if err != nil {
		log.Err(err).Msg("[stress] failed to marshal run summary")
		return
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		log.Err(err).Msgf("[stress] failed to write run summary to %q", path)
		return
	}
	log.Info().Msgf("[stress] run summary written to %q", path)
}
