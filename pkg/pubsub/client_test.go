package pubsub

import (
	"context"
	"testing"

	"github.com/angelmondragon/storefront-orders/pkg/config"
	"github.com/angelmondragon/storefront-orders/pkg/enums"
)

func TestTopicResourceName(t *testing.T) {
	cases := []struct {
		project string
		name    string
		want    string
	}{
		{project: "shop", name: "notifications", want: "projects/shop/topics/notifications"},
		{project: "shop", name: " projects/other/topics/n ", want: "projects/other/topics/n"},
		{project: "", name: "notifications", want: ""},
		{project: "shop", name: "", want: ""},
	}
	for _, tc := range cases {
		if got := TopicResourceName(tc.project, tc.name); got != tc.want {
			t.Fatalf("TopicResourceName(%q, %q) = %q, want %q", tc.project, tc.name, got, tc.want)
		}
	}
}

func TestTopicForRoutesAfterSalesAggregates(t *testing.T) {
	cfg := config.PubSubConfig{OrderTopic: "orders", AfterSalesTopic: "after-sales"}
	cases := map[enums.OutboxAggregateType]string{
		enums.AggregateOrder:         "orders",
		enums.AggregateRefundRequest: "after-sales",
		enums.AggregateReturnRequest: "after-sales",
	}
	for aggregate, want := range cases {
		if got := topicFor(cfg, aggregate); got != want {
			t.Fatalf("topicFor(%s) = %q, want %q", aggregate, got, want)
		}
	}
}

func TestNilClientIsNotReady(t *testing.T) {
	var c *Client
	if c.OrderedDelivery() {
		t.Fatal("nil client must not enable ordering")
	}
	if c.Publisher("orders") != nil {
		t.Fatal("nil client must not hand out publishers")
	}
	if err := c.Ping(context.Background()); err == nil {
		t.Fatal("expected ping error for nil client")
	}
}
