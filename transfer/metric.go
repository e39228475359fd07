package transfer

import "sync/atomic"

// Metrics contains atomic counters of an Engine.
type Metrics struct {
	// BlockSendCount is the number of frames acknowledged by a receiver.
	BlockSendCount atomic.Uint64
	// BlockRecvCount is the number of frames accepted from a sender.
	BlockRecvCount atomic.Uint64
	// RetryCount is the number of frame resends and receive NAKs.
	RetryCount atomic.Uint64
	// TransferOKCount is the number of transfers that completed.
	TransferOKCount atomic.Uint64
	// TransferErrCount is the number of transfers that failed.
	TransferErrCount atomic.Uint64
}

func (m *Metrics) incBlockSendCount() { m.BlockSendCount.Add(1) }

func (m *Metrics) incBlockRecvCount() { m.BlockRecvCount.Add(1) }

func (m *Metrics) incRetryCount() { m.RetryCount.Add(1) }

func (m *Metrics) done(err error) {
	if err != nil {
		m.TransferErrCount.Add(1)
		return
	}
	m.TransferOKCount.Add(1)
}
