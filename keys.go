package covey

import "strconv"

// Coordinator node layout, shared by every member of a group:
//
//	/consumers/<group>/ids/<member_id>            ephemeral, payload "{}"
//	/consumers/<group>/owners/<topic>/<partition> ephemeral, payload member id
//	/consumers/<group>/offsets/<topic>/<partition> persistent, decimal ASCII
const consumersPrefix = "/consumers"

// memberPayload is the literal payload of a member registration node.
var memberPayload = []byte("{}")

func groupPath(group string) string {
	return consumersPrefix + "/" + group
}

func membersPath(group string) string {
	return groupPath(group) + "/ids"
}

func memberPath(group, memberID string) string {
	return membersPath(group) + "/" + memberID
}

func ownersPath(group, topic string) string {
	return groupPath(group) + "/owners/" + topic
}

func ownerPath(group, topic string, partition int32) string {
	return ownersPath(group, topic) + "/" + strconv.FormatInt(int64(partition), 10)
}

func offsetsPath(group, topic string) string {
	return groupPath(group) + "/offsets/" + topic
}

func offsetPath(group, topic string, partition int32) string {
	return offsetsPath(group, topic) + "/" + strconv.FormatInt(int64(partition), 10)
}
