package storage

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type message struct {
	topic   string
	payload []byte
}

type fakePublisher struct {
	messages []message
	err      error
	closed   bool
}

func (p *fakePublisher) Publish(topic string, payload []byte) error {
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, message{topic, payload})
	return nil
}

func (p *fakePublisher) Close() error {
	p.closed = true
	return nil
}

func TestMQTT_WriteWindows(t *testing.T) {
	pub := &fakePublisher{}
	res := testResult(t)
	info := testInfo(res)
	m := NewMQTT(pub, "lab/fridge/", info)

	windows, err := res.Averages(3)
	require.NoError(t, err)

	require.NoError(t, m.WriteSeries(res.Series[0]))
	assert.Empty(t, pub.messages, "raw series are not published")

	require.NoError(t, m.WriteWindows("AIN48", windows[0]))
	require.Len(t, pub.messages, 2)
	assert.Equal(t, "lab/fridge/AIN48", pub.messages[0].topic)

	var msg WindowMessage
	require.NoError(t, json.Unmarshal(pub.messages[0].payload, &msg))
	assert.Equal(t, info.ID, msg.Session)
	assert.Equal(t, "AIN48", msg.Channel)
	assert.Equal(t, 3, msg.Count)
	assert.False(t, msg.Partial)
	assert.InDelta(t, 100.0, msg.Resistance, 1e-9)
	assert.Equal(t, "mK", msg.Unit)
	assert.True(t, start.Equal(msg.Timestamp))

	require.NoError(t, json.Unmarshal(pub.messages[1].payload, &msg))
	assert.True(t, msg.Partial)
	assert.Equal(t, 1, msg.Index)

	require.NoError(t, m.Close())
	assert.True(t, pub.closed)
}

func TestMQTT_TemperatureUnit(t *testing.T) {
	pub := &fakePublisher{}
	res := testResult(t)
	info := testInfo(res)
	info.TemperatureScale = 1

	windows, err := res.Averages(4)
	require.NoError(t, err)
	require.NoError(t, NewMQTT(pub, "t", info).WriteWindows("AIN48", windows[0]))
	require.Len(t, pub.messages, 1)
	assert.Contains(t, string(pub.messages[0].payload), `"temperature_unit":"K"`)
}

func TestMQTT_DefaultTopic(t *testing.T) {
	m := NewMQTT(&fakePublisher{}, "", SessionInfo{})
	assert.Equal(t, "cryotherm/AIN96", m.Topic("AIN96"))
}

func TestMQTT_PublishError(t *testing.T) {
	boom := errors.New("not connected")
	m := NewMQTT(&fakePublisher{err: boom}, "t", SessionInfo{})
	windows, err := testResult(t).Averages(2)
	require.NoError(t, err)

	err = m.WriteWindows("AIN48", windows[0])
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "window 0")
}
