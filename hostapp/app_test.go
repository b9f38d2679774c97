package hostapp

import (
	"context"
	"testing"

	"sparkplug/payload"
	"sparkplug/sparkplugb"
	"sparkplug/topic"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func baseConfig() Config {
	return Config{
		BrokerURL: "tcp://localhost:1883",
		ClientID:  "scada1",
		HostID:    "SCADA01",
	}
}

func connectedApp(t *testing.T, cfg Config) (*App, *mockMQTTClient) {
	client := new(mockMQTTClient)
	client.On("Connect", mock.Anything, mock.Anything).Return(nil)
	client.On("SetConnectionLostHandler", mock.Anything).Return()

	a, err := New(cfg, client)
	require.NoError(t, err)
	require.NoError(t, a.Connect(context.Background()))
	return a, client
}

func TestConnect_Success(t *testing.T) {
	a, client := connectedApp(t, baseConfig())
	client.AssertExpectations(t)
	_ = a
}

func TestConnect_AlreadyConnected(t *testing.T) {
	a, _ := connectedApp(t, baseConfig())
	err := a.Connect(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyConnected)
}

func TestPublishStateBirth_NotConnected(t *testing.T) {
	client := new(mockMQTTClient)
	a, err := New(baseConfig(), client)
	require.NoError(t, err)

	err = a.PublishStateBirth(context.Background(), 1000)
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestPublishStateBirth_PublishesRetainedJSON(t *testing.T) {
	a, client := connectedApp(t, baseConfig())

	var gotTopic string
	var gotQoS byte
	var gotRetain bool
	var gotPayload []byte
	client.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			gotTopic = args.String(1)
			gotQoS = args.Get(2).(byte)
			gotRetain = args.Get(3).(bool)
			gotPayload = args.Get(4).([]byte)
		}).Return(nil)

	require.NoError(t, a.PublishStateBirth(context.Background(), 12345))

	assert.Equal(t, "spBv1.0/STATE/SCADA01", gotTopic)
	assert.EqualValues(t, 1, gotQoS)
	assert.True(t, gotRetain)
	assert.JSONEq(t, `{"online":true,"timestamp":12345}`, string(gotPayload))
}

func TestPublishStateDeath_OnlineFalse(t *testing.T) {
	a, client := connectedApp(t, baseConfig())

	var gotPayload []byte
	client.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { gotPayload = args.Get(4).([]byte) }).Return(nil)

	require.NoError(t, a.PublishStateDeath(context.Background(), 999))
	assert.JSONEq(t, `{"online":false,"timestamp":999}`, string(gotPayload))
}

func TestSubscribeAllGroups_UsesWildcardFilter(t *testing.T) {
	a, client := connectedApp(t, baseConfig())
	client.On("Subscribe", mock.Anything, "spBv1.0/#", byte(1), mock.Anything).Return(nil)
	require.NoError(t, a.SubscribeAllGroups(context.Background()))
}

func TestSubscribeGroup(t *testing.T) {
	a, client := connectedApp(t, baseConfig())
	client.On("Subscribe", mock.Anything, "spBv1.0/Energy/#", byte(1), mock.Anything).Return(nil)
	require.NoError(t, a.SubscribeGroup(context.Background(), "Energy"))
}

func TestSubscribeNode(t *testing.T) {
	a, client := connectedApp(t, baseConfig())
	client.On("Subscribe", mock.Anything, "spBv1.0/Energy/+/Gateway01/#", byte(1), mock.Anything).Return(nil)
	require.NoError(t, a.SubscribeNode(context.Background(), "Energy", "Gateway01"))
}

func TestSubscribeState(t *testing.T) {
	a, client := connectedApp(t, baseConfig())
	client.On("Subscribe", mock.Anything, "spBv1.0/STATE/OtherHost", byte(1), mock.Anything).Return(nil)
	require.NoError(t, a.SubscribeState(context.Background(), "OtherHost"))
}

func TestPublishNodeCommand(t *testing.T) {
	a, client := connectedApp(t, baseConfig())

	var gotTopic string
	var gotQoS byte
	client.On("Publish", mock.Anything, mock.Anything, mock.Anything, false, mock.Anything).
		Run(func(args mock.Arguments) {
			gotTopic = args.String(1)
			gotQoS = args.Get(2).(byte)
		}).Return(nil)

	err := a.PublishNodeCommand(context.Background(), "Energy", "Gateway01", payload.New().AddNodeControlRebirth(true))
	require.NoError(t, err)
	assert.Equal(t, "spBv1.0/Energy/NCMD/Gateway01", gotTopic)
	assert.EqualValues(t, 0, gotQoS)
}

func TestPublishDeviceCommand(t *testing.T) {
	a, client := connectedApp(t, baseConfig())

	var gotTopic string
	client.On("Publish", mock.Anything, mock.Anything, mock.Anything, false, mock.Anything).
		Run(func(args mock.Arguments) { gotTopic = args.String(1) }).Return(nil)

	err := a.PublishDeviceCommand(context.Background(), "Energy", "Gateway01", "Sensor01", payload.New().AddMetric("x", 1.0))
	require.NoError(t, err)
	assert.Equal(t, "spBv1.0/Energy/DCMD/Gateway01/Sensor01", gotTopic)
}

func TestRequestRebirth(t *testing.T) {
	a, client := connectedApp(t, baseConfig())

	var gotPayload []byte
	client.On("Publish", mock.Anything, "spBv1.0/Energy/NCMD/Gateway01", mock.Anything, false, mock.Anything).
		Run(func(args mock.Arguments) { gotPayload = args.Get(4).([]byte) }).Return(nil)

	require.NoError(t, a.RequestRebirth(context.Background(), "Energy", "Gateway01"))

	got, err := sparkplugb.Unmarshal(gotPayload)
	require.NoError(t, err)
	m := got.MetricByName("Node Control/Rebirth")
	require.NotNil(t, m)
}

func TestHandleMessage_STATETopic_InvokesCallbackWithSyntheticTopic(t *testing.T) {
	var gotTopic topic.Topic
	var called bool
	cfg := baseConfig()
	cfg.MessageCallback = func(t topic.Topic, p *sparkplugb.Payload) {
		gotTopic = t
		called = true
	}
	a, _ := connectedApp(t, cfg)

	a.handleMessage(mockMessage{topic: "spBv1.0/STATE/OtherHost", payload: []byte(`{"online":true,"timestamp":1}`)})

	require.True(t, called)
	assert.Equal(t, topic.STATE, gotTopic.MessageType)
	assert.Equal(t, "OtherHost", gotTopic.EdgeNodeID)
}

func TestHandleMessage_IgnoresNonSparkplugTopic(t *testing.T) {
	a, _ := connectedApp(t, baseConfig())
	a.handleMessage(mockMessage{topic: "not/sparkplug", payload: []byte("x")})
}

func TestHandleMessage_ValidatesAndTracksNodeState(t *testing.T) {
	cfg := baseConfig()
	cfg.ValidateSequence = true
	var receivedCount int
	cfg.MessageCallback = func(t topic.Topic, p *sparkplugb.Payload) { receivedCount++ }
	a, _ := connectedApp(t, cfg)

	birth := &sparkplugb.Payload{}
	birth.SetSeq(0)
	birth.AddMetric(&sparkplugb.Metric{})
	bdSeqMetric := &sparkplugb.Metric{Datatype: sparkplugb.UInt64, Value: uint64(5)}
	bdSeqMetric.Name = strPtr("bdSeq")
	birth.AddMetric(bdSeqMetric)
	data, err := birth.Marshal()
	require.NoError(t, err)

	a.handleMessage(mockMessage{topic: "spBv1.0/Energy/NBIRTH/Gateway01", payload: data})
	assert.Equal(t, 1, receivedCount)

	state, ok := a.GetNodeState("Energy", "Gateway01")
	require.True(t, ok)
	assert.True(t, state.BirthReceived)
	assert.EqualValues(t, 5, state.BdSeq)
}

func TestGetNodeState_UnknownNode(t *testing.T) {
	a, _ := connectedApp(t, baseConfig())
	_, ok := a.GetNodeState("Energy", "Ghost")
	assert.False(t, ok)
}

func strPtr(s string) *string { return &s }
