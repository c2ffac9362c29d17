package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const arpSource = `Value ADDRESS (\d+\.\d+\.\d+\.\d+)
Value MAC (\S+)
Value INTERFACE (\S+)

Start
  ^Internet\s+${ADDRESS}\s+\S+\s+${MAC}\s+ARPA\s+${INTERFACE}\s*$ -> Record
  ^. -> Next
`

const arpOutput = `Internet  10.0.0.1         -          aabb.ccdd.eeff  ARPA   GigabitEthernet0/1
Internet  10.0.0.2         23         1122.3344.5566  ARPA   GigabitEthernet0/2
`

const versionSource = `Value VERSION (\S+)

Start
  ^Cisco IOS Software.*Version\s+${VERSION}, -> Record
  ^. -> Next
`

const versionOutput = "Cisco IOS Software, C3750 Software, Version 15.2(4)E10, RELEASE SOFTWARE\n"

func TestScorePicksHighestScoringTemplate(t *testing.T) {
	candidates := []Record{
		{ID: "bad", CommandTag: "cisco_ios_arp", Source: "Value X (.*)\n\nStart\n  ^. -> Next\n"},
		{ID: "good", CommandTag: "cisco_ios_arp", Source: arpSource},
	}

	result, err := Score(candidates, arpOutput)
	require.NoError(t, err)
	assert.Equal(t, "good", result.TemplateID)
	assert.Greater(t, result.Score, 0.0)
	assert.Len(t, result.Records, 2)
}

func TestScoreVersionTemplateSingleRecordIsHighScore(t *testing.T) {
	candidates := []Record{{ID: "v", CommandTag: "cisco_ios_version", Source: versionSource}}
	result, err := Score(candidates, versionOutput)
	require.NoError(t, err)
	assert.Equal(t, "v", result.TemplateID)
	assert.Len(t, result.Records, 1)
	assert.Greater(t, result.Score, 50.0)
}

// P1: scoring is deterministic across repeated runs on the same input.
func TestScoreIsDeterministic(t *testing.T) {
	candidates := []Record{{ID: "arp", CommandTag: "cisco_ios_arp", Source: arpSource}}
	r1, err := Score(candidates, arpOutput)
	require.NoError(t, err)
	r2, err := Score(candidates, arpOutput)
	require.NoError(t, err)
	assert.Equal(t, r1, r2)
}

func TestScoreMalformedTemplateContributesZeroNotError(t *testing.T) {
	candidates := []Record{
		{ID: "broken", CommandTag: "cisco_ios_arp", Source: "not a valid template"},
		{ID: "ok", CommandTag: "cisco_ios_arp", Source: arpSource},
	}
	result, err := Score(candidates, arpOutput)
	require.NoError(t, err)
	assert.Equal(t, "ok", result.TemplateID)
}

func TestRecordsSubscoreVersionTag(t *testing.T) {
	assert.Equal(t, 30.0, recordsSubscore("cisco_ios_version", 1))
	assert.Equal(t, 10.0, recordsSubscore("cisco_ios_version", 2))
	assert.Equal(t, 0.0, recordsSubscore("cisco_ios_version", 5))
}

func TestRecordsSubscoreNonVersionTag(t *testing.T) {
	assert.Equal(t, 0.0, recordsSubscore("cisco_ios_arp", 0))
	assert.Equal(t, 10.0, recordsSubscore("cisco_ios_arp", 1))
	assert.Equal(t, 30.0, recordsSubscore("cisco_ios_arp", 10))
	assert.Equal(t, 30.0, recordsSubscore("cisco_ios_arp", 20))
}

func TestFieldRichnessSubscoreBounds(t *testing.T) {
	assert.Equal(t, 0.0, fieldRichnessSubscore(0))
	assert.Equal(t, 30.0, fieldRichnessSubscore(10))
	assert.Equal(t, 30.0, fieldRichnessSubscore(15))
}

func TestPopulationRateSubscoreZeroWhenEmpty(t *testing.T) {
	assert.Equal(t, 0.0, populationRateSubscore(0, 3, 0))
	assert.Equal(t, 25.0, populationRateSubscore(2, 2, 4))
}

func TestConsistencySubscoreSingleRecordIsFull(t *testing.T) {
	assert.Equal(t, 15.0, consistencySubscore(1, 3, []map[string]string{{"A": "x"}}))
}
