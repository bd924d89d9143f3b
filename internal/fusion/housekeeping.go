package fusion

import (
	"os"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// maxJSONLBytes bounds the JSONL mirror before the daily housekeeping job
// truncates it back to empty, since nothing else rotates this file.
const maxJSONLBytes = 64 * 1024 * 1024

// StartHousekeeping schedules a once-daily check of the JSONL mirror's
// size, truncating it back to empty when it has grown past
// maxJSONLBytes. Returns the cron instance so the caller can Stop() it
// on shutdown.
func (s *Service) StartHousekeeping() *cron.Cron {
	c := cron.New()
	_, err := c.AddFunc("@daily", s.rotateJSONL)
	if err != nil {
		log.Error().Err(err).Msg("fusion: scheduling jsonl housekeeping")
		return c
	}
	c.Start()
	return c
}

func (s *Service) rotateJSONL() {
	if s.jsonlPath == "" {
		return
	}

	s.jsonlMu.Lock()
	defer s.jsonlMu.Unlock()

	info, err := os.Stat(s.jsonlPath)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", s.jsonlPath).Msg("fusion: stat jsonl mirror")
		}
		return
	}
	if info.Size() < maxJSONLBytes {
		return
	}

	if err := os.Truncate(s.jsonlPath, 0); err != nil {
		log.Warn().Err(err).Str("path", s.jsonlPath).Msg("fusion: truncating jsonl mirror")
		return
	}
	log.Info().Str("path", s.jsonlPath).Msg("fusion: rotated jsonl mirror")
}
