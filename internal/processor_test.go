package internal

import (
	"context"
	"io"
	"sort"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/vadiminshakov/txlanes/config"
	"github.com/vadiminshakov/txlanes/internal/domain"
	"github.com/vadiminshakov/txlanes/internal/services/lane"
)

type sliceSource struct {
	records []domain.Transaction
	failAt  int
	pos     int
}

func (s *sliceSource) Next() (domain.Transaction, error) {
	if s.failAt > 0 && s.pos == s.failAt {
		return domain.Transaction{}, errors.New("malformed record")
	}
	if s.pos >= len(s.records) {
		return domain.Transaction{}, io.EOF
	}
	tx := s.records[s.pos]
	s.pos++
	return tx, nil
}

type fakeJournal struct {
	runID  string
	states []domain.ClientState
	err    error
}

func (j *fakeJournal) SaveAll(runID string, states []domain.ClientState) error {
	j.runID = runID
	j.states = states
	return j.err
}

func testConfig(lanes int, policy lane.SizingPolicy) config.Config {
	conf := config.Default()
	conf.InputPath = "test.csv"
	conf.Lanes = lanes
	conf.Buffer = policy
	return conf
}

func tinyBuffers() lane.SizingPolicy {
	return lane.SizingPolicy{Min: 1, Max: 1, BytesPerSlot: 1}
}

func amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func sortedStates(states []domain.ClientState) []domain.ClientState {
	out := append([]domain.ClientState(nil), states...)
	sort.Slice(out, func(i, j int) bool { return out[i].Client < out[j].Client })
	return out
}

func runProcessor(t *testing.T, conf config.Config, src Source, opts ...Option) (Report, error) {
	t.Helper()

	proc, err := NewProcessor(conf, zaptest.NewLogger(t), opts...)
	require.NoError(t, err)

	type out struct {
		report Report
		err    error
	}
	done := make(chan out, 1)
	go func() {
		r, err := proc.Run(context.Background(), src, 1<<20)
		done <- out{r, err}
	}()

	select {
	case o := <-done:
		return o.report, o.err
	case <-time.After(10 * time.Second):
		t.Fatal("processor did not finish, lanes deadlocked")
		return Report{}, nil
	}
}

func scenarioRecords() []domain.Transaction {
	return []domain.Transaction{
		{Kind: domain.KindDeposit, Client: 1, Tx: 1, Amount: amount("1.0")},
		{Kind: domain.KindDeposit, Client: 2, Tx: 10, Amount: amount("50.0")},
		{Kind: domain.KindDeposit, Client: 1, Tx: 2, Amount: amount("2.0")},
		{Kind: domain.KindDispute, Client: 2, Tx: 10},
		{Kind: domain.KindDeposit, Client: 1, Tx: 3, Amount: amount("2.0")},
		{Kind: domain.KindWithdrawal, Client: 1, Tx: 4, Amount: amount("1.5")},
		{Kind: domain.KindResolve, Client: 2, Tx: 10},
		{Kind: domain.KindDispute, Client: 1, Tx: 1},
		{Kind: domain.ParseKind("transfer"), Client: 3, Tx: 20, Amount: amount("9.0")},
	}
}

func TestProcessor_Scenario(t *testing.T) {
	for _, lanes := range []int{1, 2, 3, 8} {
		report, err := runProcessor(t, testConfig(lanes, lane.DefaultSizingPolicy()), &sliceSource{records: scenarioRecords()})
		require.NoError(t, err)

		states := sortedStates(report.States)
		require.Len(t, states, 3)

		assert.True(t, amount("2.5").Equal(states[0].Available), "lanes=%d", lanes)
		assert.True(t, amount("1.0").Equal(states[0].Held), "lanes=%d", lanes)
		assert.True(t, amount("3.5").Equal(states[0].Total()), "lanes=%d", lanes)
		assert.False(t, states[0].Locked)

		assert.True(t, amount("50.0").Equal(states[1].Available), "lanes=%d", lanes)
		assert.True(t, states[1].Held.IsZero())
		assert.False(t, states[1].Locked)

		assert.Equal(t, domain.ClientID(3), states[2].Client)
		assert.True(t, states[2].Total().IsZero())

		assert.Equal(t, uint64(len(scenarioRecords())), report.Records)
		assert.Equal(t, lanes, report.Lanes)
		assert.Len(t, report.LaneStats, lanes)
		assert.NotEmpty(t, report.RunID)
	}
}

func TestProcessor_ChargebackLocksAccount(t *testing.T) {
	records := append(scenarioRecords(),
		domain.Transaction{Kind: domain.KindChargeback, Client: 1, Tx: 1},
		domain.Transaction{Kind: domain.KindDeposit, Client: 1, Tx: 5, Amount: amount("100.0")},
	)

	report, err := runProcessor(t, testConfig(4, lane.DefaultSizingPolicy()), &sliceSource{records: records})
	require.NoError(t, err)

	states := sortedStates(report.States)
	assert.True(t, amount("2.5").Equal(states[0].Available))
	assert.True(t, states[0].Held.IsZero())
	assert.True(t, amount("2.5").Equal(states[0].Total()))
	assert.True(t, states[0].Locked)
}

// orderSensitive builds, per client, a sequence whose result depends on order:
// a withdrawal of the full balance that only succeeds after the deposit before it.
func orderSensitive(clients int) []domain.Transaction {
	var records []domain.Transaction
	tx := domain.TxID(1)
	for step := 0; step < 3; step++ {
		for c := 0; c < clients; c++ {
			client := domain.ClientID(c)
			switch step {
			case 0:
				records = append(records, domain.Transaction{Kind: domain.KindDeposit, Client: client, Tx: tx, Amount: amount("10")})
			case 1:
				records = append(records, domain.Transaction{Kind: domain.KindWithdrawal, Client: client, Tx: tx, Amount: amount("10")})
			case 2:
				records = append(records, domain.Transaction{Kind: domain.KindDeposit, Client: client, Tx: tx, Amount: amount("5")})
			}
			tx++
		}
	}
	return records
}

func TestProcessor_PreservesPerClientOrderUnderBackpressure(t *testing.T) {
	const clients = 50
	records := orderSensitive(clients)

	report, err := runProcessor(t, testConfig(3, tinyBuffers()), &sliceSource{records: records})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Capacity)
	assert.Equal(t, uint64(len(records)), report.Records)
	require.Len(t, report.States, clients)
	for _, s := range report.States {
		assert.True(t, amount("5").Equal(s.Available), "client %d: got %s", s.Client, s.Available)
		assert.True(t, s.Held.IsZero())
	}
}

func TestProcessor_DeterministicAcrossRuns(t *testing.T) {
	records := append(orderSensitive(20), scenarioRecords()...)
	conf := testConfig(4, tinyBuffers())

	first, err := runProcessor(t, conf, &sliceSource{records: records})
	require.NoError(t, err)
	second, err := runProcessor(t, conf, &sliceSource{records: records})
	require.NoError(t, err)

	a, b := sortedStates(first.States), sortedStates(second.States)
	require.Len(t, b, len(a))
	for i := range a {
		assert.Equal(t, a[i].Client, b[i].Client)
		assert.True(t, a[i].Available.Equal(b[i].Available))
		assert.True(t, a[i].Held.Equal(b[i].Held))
		assert.Equal(t, a[i].Locked, b[i].Locked)
	}
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestProcessor_DecodeErrorAborts(t *testing.T) {
	src := &sliceSource{records: orderSensitive(30), failAt: 40}

	report, err := runProcessor(t, testConfig(2, tinyBuffers()), src)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode input")
	assert.Contains(t, err.Error(), "malformed record")
	assert.Empty(t, report.States)
}

func TestProcessor_Journal(t *testing.T) {
	journal := &fakeJournal{}

	report, err := runProcessor(t, testConfig(2, lane.DefaultSizingPolicy()), &sliceSource{records: scenarioRecords()}, WithJournal(journal))
	require.NoError(t, err)

	assert.Equal(t, report.RunID, journal.runID)
	assert.Len(t, journal.states, len(report.States))
}

func TestProcessor_JournalError(t *testing.T) {
	journal := &fakeJournal{err: errors.New("disk full")}

	_, err := runProcessor(t, testConfig(2, lane.DefaultSizingPolicy()), &sliceSource{records: scenarioRecords()}, WithJournal(journal))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "journal client states")
}

func TestProcessor_EmptyInput(t *testing.T) {
	report, err := runProcessor(t, testConfig(4, lane.DefaultSizingPolicy()), &sliceSource{})
	require.NoError(t, err)
	assert.Empty(t, report.States)
	assert.Zero(t, report.Records)
}

func TestNewProcessor_InvalidLanes(t *testing.T) {
	_, err := NewProcessor(testConfig(0, lane.DefaultSizingPolicy()), nil)
	assert.Error(t, err)
}
