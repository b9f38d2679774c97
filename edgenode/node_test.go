package edgenode

import (
	"context"
	"testing"
	"time"

	"sparkplug/application"
	"sparkplug/payload"
	"sparkplug/sparkplugb"
	"sparkplug/topic"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func baseConfig() Config {
	return Config{
		BrokerURL:  "tcp://localhost:1883",
		ClientID:   "edge1",
		GroupID:    "G",
		EdgeNodeID: "N1",
	}
}

func connectedNode(t *testing.T, cfg Config) (*Node, *mockMQTTClient) {
	client := new(mockMQTTClient)
	client.On("Connect", mock.Anything, mock.Anything).Return(nil)
	client.On("SetConnectionLostHandler", mock.Anything).Return()
	client.On("Subscribe", mock.Anything, "spBv1.0/G/NCMD/N1", mock.Anything, mock.Anything).Return(nil)

	n, err := New(cfg, client)
	require.NoError(t, err)
	require.NoError(t, n.Connect(context.Background()))
	return n, client
}

func TestConnect_NoPrimaryHost_SetsOnlineImmediately(t *testing.T) {
	n, client := connectedNode(t, baseConfig())
	assert.True(t, n.Status().Connected)
	assert.True(t, n.Status().PrimaryHostOnline)
	client.AssertExpectations(t)
}

func TestConnect_WithPrimaryHost_WaitsForState(t *testing.T) {
	cfg := baseConfig()
	cfg.PrimaryHostID = "Host1"
	cfg.PrimaryHostWaitTimeout = 200 * time.Millisecond

	client := new(mockMQTTClient)
	client.On("Connect", mock.Anything, mock.Anything).Return(nil)
	client.On("SetConnectionLostHandler", mock.Anything).Return()
	client.On("Subscribe", mock.Anything, "spBv1.0/G/NCMD/N1", mock.Anything, mock.Anything).Return(nil)
	client.On("Subscribe", mock.Anything, "spBv1.0/STATE/Host1", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			handler := args.Get(3).(application.MessageHandler)
			handler(mockMessage{topic: "spBv1.0/STATE/Host1", payload: []byte(`{"online":true}`)})
		}).Return(nil)

	n, err := New(cfg, client)
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, n.Connect(context.Background()))
	assert.Less(t, time.Since(start), 150*time.Millisecond)
	assert.True(t, n.Status().PrimaryHostOnline)
}

func TestConnect_WithPrimaryHost_OfflineGatesBirth(t *testing.T) {
	cfg := baseConfig()
	cfg.PrimaryHostID = "Host1"
	cfg.PrimaryHostWaitTimeout = 10 * time.Millisecond

	client := new(mockMQTTClient)
	client.On("Connect", mock.Anything, mock.Anything).Return(nil)
	client.On("SetConnectionLostHandler", mock.Anything).Return()
	client.On("Subscribe", mock.Anything, "spBv1.0/G/NCMD/N1", mock.Anything, mock.Anything).Return(nil)
	client.On("Subscribe", mock.Anything, "spBv1.0/STATE/Host1", mock.Anything, mock.Anything).Return(nil)

	n, err := New(cfg, client)
	require.NoError(t, err)
	require.NoError(t, n.Connect(context.Background()))
	assert.False(t, n.Status().PrimaryHostOnline)

	err = n.PublishBirth(context.Background(), payload.New().AddMetric("x", 1.0))
	assert.ErrorIs(t, err, ErrPrimaryHostOffline)
}

func TestPublishBirth_InjectsBdSeqAndResetsSeq(t *testing.T) {
	n, client := connectedNode(t, baseConfig())

	var published []byte
	client.On("Publish", mock.Anything, "spBv1.0/G/NBIRTH/N1", byte(0), false, mock.Anything).
		Run(func(args mock.Arguments) { published = args.Get(4).([]byte) }).Return(nil)

	n.seq.Next()
	n.seq.Next()

	err := n.PublishBirth(context.Background(), payload.New().AddMetricWithAlias("Temp", 1, 20.5))
	require.NoError(t, err)

	got, err := sparkplugb.Unmarshal(published)
	require.NoError(t, err)
	assert.EqualValues(t, 0, got.GetSeq())
	bdSeq := got.MetricByName("bdSeq")
	require.NotNil(t, bdSeq)
	v, ok := bdSeq.LongValue()
	require.True(t, ok)
	assert.EqualValues(t, 1, v)

	assert.EqualValues(t, 0, n.Status().Seq)
}

func TestPublishBirth_NotConnected(t *testing.T) {
	client := new(mockMQTTClient)
	n, err := New(baseConfig(), client)
	require.NoError(t, err)

	err = n.PublishBirth(context.Background(), payload.New())
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestPublishData_ConsumesNextSeq(t *testing.T) {
	n, client := connectedNode(t, baseConfig())

	var published []byte
	client.On("Publish", mock.Anything, "spBv1.0/G/NDATA/N1", byte(0), false, mock.Anything).
		Run(func(args mock.Arguments) { published = args.Get(4).([]byte) }).Return(nil)

	err := n.PublishData(context.Background(), payload.New().AddMetricByAlias(1, 21.0))
	require.NoError(t, err)

	got, err := sparkplugb.Unmarshal(published)
	require.NoError(t, err)
	assert.EqualValues(t, 1, got.GetSeq())
}

func TestPublishDeviceBirth_RequiresNodeBirthFirst(t *testing.T) {
	n, _ := connectedNode(t, baseConfig())
	err := n.PublishDeviceBirth(context.Background(), "D1", payload.New())
	assert.ErrorIs(t, err, ErrBirthRequired)
}

func TestPublishDeviceBirth_SubscribesDCMDBeforePublish(t *testing.T) {
	n, client := connectedNode(t, baseConfig())
	client.On("Publish", mock.Anything, "spBv1.0/G/NBIRTH/N1", mock.Anything, false, mock.Anything).Return(nil)
	require.NoError(t, n.PublishBirth(context.Background(), payload.New().AddMetric("bdSeq", uint64(1))))

	var order []string
	client.On("Subscribe", mock.Anything, "spBv1.0/G/DCMD/N1/D1", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { order = append(order, "subscribe") }).Return(nil)
	client.On("Publish", mock.Anything, "spBv1.0/G/DBIRTH/N1/D1", mock.Anything, false, mock.Anything).
		Run(func(mock.Arguments) { order = append(order, "publish") }).Return(nil)

	err := n.PublishDeviceBirth(context.Background(), "D1", payload.New().AddMetricWithAlias("Status", 1, true))
	require.NoError(t, err)
	assert.Equal(t, []string{"subscribe", "publish"}, order)
	assert.True(t, n.Status().Devices["D1"].Online)
}

func TestPublishDeviceData_RequiresDeviceBirth(t *testing.T) {
	n, _ := connectedNode(t, baseConfig())
	err := n.PublishDeviceData(context.Background(), "D1", payload.New())
	assert.ErrorIs(t, err, ErrDeviceBirthRequired)
}

func TestPublishDeviceDeath_MarksOffline(t *testing.T) {
	n, client := connectedNode(t, baseConfig())
	client.On("Publish", mock.Anything, mock.Anything, mock.Anything, false, mock.Anything).Return(nil)
	client.On("Subscribe", mock.Anything, "spBv1.0/G/DCMD/N1/D1", mock.Anything, mock.Anything).Return(nil)

	require.NoError(t, n.PublishBirth(context.Background(), payload.New().AddMetric("bdSeq", uint64(1))))
	require.NoError(t, n.PublishDeviceBirth(context.Background(), "D1", payload.New()))

	require.NoError(t, n.PublishDeviceDeath(context.Background(), "D1"))
	assert.False(t, n.Status().Devices["D1"].Online)
}

func TestPublishDeviceDeath_UnknownDevice(t *testing.T) {
	n, _ := connectedNode(t, baseConfig())
	err := n.PublishDeviceDeath(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrUnknownDevice)
}

func TestRebirth_IncrementsBdSeqExactlyOnce(t *testing.T) {
	n, client := connectedNode(t, baseConfig())

	var publishedPayloads [][]byte
	client.On("Publish", mock.Anything, "spBv1.0/G/NBIRTH/N1", mock.Anything, false, mock.Anything).
		Run(func(args mock.Arguments) { publishedPayloads = append(publishedPayloads, args.Get(4).([]byte)) }).
		Return(nil)
	client.On("Disconnect", mock.Anything).Return(nil)

	require.NoError(t, n.PublishBirth(context.Background(), payload.New().AddMetricWithAlias("Temp", 1, 20.5)))

	bdSeqBefore := n.Status().BdSeq
	require.EqualValues(t, 1, bdSeqBefore)

	require.NoError(t, n.Rebirth(context.Background()))

	bdSeqAfter := n.Status().BdSeq
	assert.EqualValues(t, bdSeqBefore+1, bdSeqAfter)

	require.Len(t, publishedPayloads, 2)
	got, err := sparkplugb.Unmarshal(publishedPayloads[1])
	require.NoError(t, err)
	assert.EqualValues(t, 0, got.GetSeq())
	m := got.MetricByName("bdSeq")
	require.NotNil(t, m)
	v, ok := m.LongValue()
	require.True(t, ok)
	assert.EqualValues(t, bdSeqAfter, v)
}

func TestRebirth_RequiresPriorBirth(t *testing.T) {
	n, _ := connectedNode(t, baseConfig())
	err := n.Rebirth(context.Background())
	assert.ErrorIs(t, err, ErrBirthRequired)
}

func TestPublishDeath_DisconnectsAfterwards(t *testing.T) {
	n, client := connectedNode(t, baseConfig())
	client.On("Publish", mock.Anything, "spBv1.0/G/NDEATH/N1", mock.Anything, false, mock.Anything).Return(nil)
	client.On("Disconnect", mock.Anything).Return(nil)

	require.NoError(t, n.PublishDeath(context.Background()))
	assert.False(t, n.Status().Connected)
}

func TestHandleMessage_InvokesCommandCallbackOutsideLock(t *testing.T) {
	var gotTopic string
	var lockFree bool
	var n *Node
	cfg := baseConfig()
	cfg.CommandCallback = func(t topic.Topic, p *sparkplugb.Payload) {
		gotTopic = t.String()
		if n.mu.TryLock() {
			lockFree = true
			n.mu.Unlock()
		}
	}
	n, _ = connectedNode(t, cfg)

	cmdPayload := &sparkplugb.Payload{}
	data, err := cmdPayload.Marshal()
	require.NoError(t, err)

	n.handleMessage(mockMessage{topic: "spBv1.0/G/NCMD/N1", payload: data})
	assert.Equal(t, "spBv1.0/G/NCMD/N1", gotTopic)
	assert.True(t, lockFree)
}

func TestHandleMessage_IgnoresNonSparkplugTopic(t *testing.T) {
	n, _ := connectedNode(t, baseConfig())
	n.handleMessage(mockMessage{topic: "not/sparkplug", payload: []byte("x")})
}
