package kwclient_test

import (
	"testing"
	"time"

	"github.com/praetorian-inc/fanout/pkg/kwclient"
	"github.com/praetorian-inc/fanout/pkg/test"
)

func TestClientAgainstContainer(t *testing.T) {
	testcases := []test.Testcase{
		{
			Description: "heartbeat against socat echo",
			Port:        7000,
			Client: kwclient.Config{
				Conns:             20,
				HeartbeatInterval: 200 * time.Millisecond,
			},
			Expected: func(st kwclient.Stats) bool {
				return st.Connected == 20 && st.Received >= 20
			},
			RunConfig: test.EchoContainer(7000),
		},
		{
			Description: "ping-pong against socat echo",
			Port:        7001,
			Client: kwclient.Config{
				Conns:    10,
				SendSize: 128,
			},
			Expected: func(st kwclient.Stats) bool {
				return st.Connected == 10 && st.Received >= 100
			},
			RunConfig: test.EchoContainer(7001),
		},
	}

	for _, tc := range testcases {
		t.Run(tc.Description, func(t *testing.T) {
			err := test.RunTest(t, tc)
			if err != nil {
				t.Errorf("%v", err)
			}
		})
	}
}
