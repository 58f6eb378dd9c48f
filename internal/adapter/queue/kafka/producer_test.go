package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProducer_NoBrokersReturnsError(t *testing.T) {
	_, err := NewProducer(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no seed brokers")
}

func TestNewConsumer_ValidatesRequiredFields(t *testing.T) {
	_, err := NewConsumer(nil, "group", []string{"leads.raw"}, 3, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no seed brokers")

	_, err = NewConsumer([]string{"localhost:9092"}, "", []string{"leads.raw"}, 3, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required group ID")

	_, err = NewConsumer([]string{"localhost:9092"}, "group", nil, 3, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no topics provided")
}
