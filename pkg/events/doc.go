/*
Package events provides an in-memory event broker for driftshare's pipeline
progress and lifecycle notifications.

Broker is a fan-out pub/sub bus: any number of Subscribers can register with
Subscribe, and every Event passed to Publish is delivered to each of them on
a best-effort basis (a subscriber with a full buffer misses the event rather
than blocking the publisher).

# Event types

	EventIndexProgress    - index_folder walked another batch of files
	EventIndexCompleted   - index_folder finished a folder
	EventSegmentCreated   - segment_folder produced a new segment
	EventSegmentUploaded  - a segment was posted successfully
	EventSegmentFailed    - a segment exhausted its retries
	EventFileCompleted    - every segment of a file finished uploading
	EventFileFailed       - a file could not be fully uploaded
	EventUploadProgress   - periodic progress tick from the upload pool
	EventDownloadProgress - periodic progress tick from the retriever
	EventShareCreated     - publish_folder minted a new share
	EventShareRevoked     - revoke_share marked a share revoked
	EventMemberGranted    - a member-tier share gained a member
	EventMemberRevoked    - a member was removed from a share
	EventJobStateChanged  - a queued job's State field changed

# Usage

Starting a broker and wiring it into the indexer and upload pool:

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	ix := indexer.New(store, cfg, broker, newID)
	pool := uploader.New(cfg, queue, net, store, broker, bodies)

Subscribing to watch progress, e.g. from a CLI command rendering a progress
bar:

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	for ev := range sub {
		switch ev.Type {
		case events.EventSegmentUploaded:
			fmt.Println("uploaded:", ev.Metadata["segment_id"])
		case events.EventFileFailed:
			fmt.Println("failed:", ev.Message)
		}
	}

Publishing an event with metadata:

	broker.Publish(&events.Event{
		Type:     events.EventSegmentUploaded,
		Message:  "segment posted",
		Metadata: map[string]string{"segment_id": seg.ID, "folder_id": folder.ID},
	})

Publish sets Timestamp automatically when left zero. A publisher with no
subscribers still works; Publish only blocks if the broker's internal event
channel is full and the broker hasn't been stopped.
*/
package events
