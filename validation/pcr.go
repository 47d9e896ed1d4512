package validation

import (
	"encoding/json"
	"fmt"
	"os"
)

// LoadPCRsFromFile loads known PCR sets from a JSON file
func LoadPCRsFromFile(path string) ([]PCRSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read PCR config file: %w", err)
	}

	var config PCRConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse PCR config: %w", err)
	}

	if len(config.PCRSets) == 0 {
		return nil, fmt.Errorf("no PCR sets found in config file")
	}

	return config.PCRSets, nil
}

// ValidatePCRs checks whether PCR0-2 match any known set and returns the index of
// the matching set, or -1.
func ValidatePCRs(pcrs map[uint64]string, knownSets []PCRSet) (bool, int) {
	for i, knownSet := range knownSets {
		if pcrs[0] == knownSet.PCR0 &&
			pcrs[1] == knownSet.PCR1 &&
			pcrs[2] == knownSet.PCR2 {
			return true, i
		}
	}
	return false, -1
}
