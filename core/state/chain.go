package state

// Head tracks the block height and whether genesis has been applied.
type Head struct {
	Height         uint64
	GenesisApplied bool
}

func (m *Manager) ChainHead() (*Head, error) {
	head, err := getRecord[Head](m, chainHeadKeyBytes)
	if err != nil {
		return nil, err
	}
	if head == nil {
		head = &Head{}
	}
	return head, nil
}

func (m *Manager) PutChainHead(head *Head) error {
	return m.KVPut(chainHeadKeyBytes, head)
}
