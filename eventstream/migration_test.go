package eventstream

import (
	"context"
	"testing"

	"github.com/goware/logger"
	"github.com/hyperledger/firefly-tokens-connector/abitype"
	"github.com/hyperledger/firefly-tokens-connector/tokendto"
)

type stubMigrationService struct {
	stream  Stream
	streams map[string][]Subscription
}

func (s *stubMigrationService) EnsureStream(ctx context.Context, topic string) (Stream, error) {
	return s.stream, nil
}
func (s *stubMigrationService) ListStreams(ctx context.Context) ([]Stream, error) {
	return []Stream{s.stream}, nil
}
func (s *stubMigrationService) ListSubscriptions(ctx context.Context, streamID string) ([]Subscription, error) {
	return s.streams[streamID], nil
}
func (s *stubMigrationService) GetOrCreateSubscription(ctx context.Context, stream Stream, eventABI abitype.Method, subscriptionName, contractAddress, fromBlock string) (Subscription, error) {
	return Subscription{}, nil
}
func (s *stubMigrationService) Events() <-chan tokendto.EventBatch { return nil }
func (s *stubMigrationService) Receipts() <-chan tokendto.Receipt { return nil }
func (s *stubMigrationService) Ack(ctx context.Context, batchID string) error { return nil }

var _ Service = (*stubMigrationService)(nil)

// CheckMigration only ever logs; it has no return value or error path to
// assert on, so these tests exercise it against fixtures that are known to
// hit each internal branch (no stream, fully covered, partially covered)
// and confirm none of them panic or block.
func TestCheckMigrationPartiallyCoveredNFTPool(t *testing.T) {
	locator := "address=0xabc&schema=ERC721WithData&type=nonfungible"
	svc := &stubMigrationService{
		stream: Stream{ID: "s1", Name: "tokens"},
		streams: map[string][]Subscription{
			"s1": {
				{Name: "tokens:" + locator + ":Transfer"},
				{Name: "tokens:" + locator + ":Approval"},
			},
		},
	}
	CheckMigration(context.Background(), svc, "tokens", logger.NewLogger(logger.LogLevel_WARN))
}

func TestCheckMigrationFullyCoveredFungiblePool(t *testing.T) {
	locator := "address=0xabc&schema=ERC20WithData&type=fungible"
	svc := &stubMigrationService{
		stream: Stream{ID: "s1", Name: "tokens"},
		streams: map[string][]Subscription{
			"s1": {{Name: "tokens:" + locator + ":Transfer"}},
		},
	}
	CheckMigration(context.Background(), svc, "tokens", logger.NewLogger(logger.LogLevel_WARN))
}

func TestCheckMigrationNoStreamIsNoOp(t *testing.T) {
	svc := &stubMigrationService{stream: Stream{ID: "s1", Name: "other-topic"}}
	CheckMigration(context.Background(), svc, "tokens", logger.NewLogger(logger.LogLevel_WARN))
}
