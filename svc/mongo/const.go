package mongo

import "github.com/alumnihub/chat/instance"

const (
	CollectionNameMessages         instance.CollectionName = "chat_messages"
	CollectionNameCommunityMembers instance.CollectionName = "community_members"
)
